// Package store defines the TransactionStore contracts the reconciliation
// engine depends on, and provides a SQLite-backed implementation plus an
// in-memory implementation for tests.
//
// The engine is read-only against the ledger tables during matching; writes
// happen only at the orchestrator's well-defined transition points (batch
// record upserts, append-only exception inserts) and at ingestion time
// (insert-if-absent dedup).
package store

import (
	"context"
	"errors"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/matcher"
	"card-recon-engine/internal/models"
)

var (
	// ErrNotFound is returned when a batch identifier is unknown. Callers
	// must report this as a distinct outcome, never as a batch failure.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyFinalized is returned when a terminal batch is finalized
	// again. Terminal states permit no further transitions.
	ErrAlreadyFinalized = errors.New("batch already finalized")
)

// LedgerReader is the read contract over both ledgers. Both fetches cover the
// half-open interval [start, end) — inclusive of start, exclusive of end —
// and are side-effect-free.
type LedgerReader interface {
	FetchBankTransactions(ctx context.Context, start, end time.Time) ([]*models.BankTransaction, error)
	FetchSchemeTransactions(ctx context.Context, start, end time.Time) ([]*models.SchemeTransaction, error)
}

// LedgerWriter ingests normalized records with insert-if-absent semantics
// keyed by (recordId, source). Upstream delivery is at-least-once; keeping
// the dedup state in the store survives restarts and bounds its growth.
type LedgerWriter interface {
	// InsertBankTransactionIfAbsent returns true when the record was
	// inserted, false when a record with the same identifier already existed.
	InsertBankTransactionIfAbsent(ctx context.Context, txn *models.BankTransaction) (bool, error)
	InsertSchemeTransactionIfAbsent(ctx context.Context, txn *models.SchemeTransaction) (bool, error)
}

// BatchStore persists reconciliation batch control records. FinalizeBatch is
// the single atomic write that moves a batch to its terminal state together
// with its counters.
type BatchStore interface {
	CreateBatch(ctx context.Context, b *batch.Batch) error
	GetBatch(ctx context.Context, batchID string) (*batch.Batch, error)
	FinalizeBatch(ctx context.Context, batchID string, status batch.Status, endedAt time.Time, counters batch.Counters) error
}

// ExceptionStore persists exception cases. Inserts are append-only; cases
// are never mutated after creation. Reads serve review tooling and reports.
type ExceptionStore interface {
	InsertExceptionCases(ctx context.Context, cases []*matcher.ExceptionCase) error
	FetchExceptionCases(ctx context.Context, batchID string) ([]*matcher.ExceptionCase, error)
}

// Store is the full TransactionStore surface.
type Store interface {
	LedgerReader
	LedgerWriter
	BatchStore
	ExceptionStore
	Close() error
}
