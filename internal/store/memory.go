package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/matcher"
	"card-recon-engine/internal/models"
)

// MemoryStore is an in-process Store used by tests and by single-shot CLI
// runs that don't need durability. Semantics match SQLiteStore: half-open
// window fetches, insert-if-absent dedup, atomic finalize.
type MemoryStore struct {
	mu         sync.RWMutex
	bank       map[string]*models.BankTransaction
	scheme     map[string]*models.SchemeTransaction
	batches    map[string]*batch.Batch
	exceptions []*matcher.ExceptionCase
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bank:    make(map[string]*models.BankTransaction),
		scheme:  make(map[string]*models.SchemeTransaction),
		batches: make(map[string]*batch.Batch),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func inWindow(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end)
}

// FetchBankTransactions returns bank records with timestamp in [start, end).
func (s *MemoryStore) FetchBankTransactions(_ context.Context, start, end time.Time) ([]*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.BankTransaction
	for _, t := range s.bank {
		if inWindow(t.TxnTimestamp, start, end) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TxnTimestamp.Equal(out[j].TxnTimestamp) {
			return out[i].TxnTimestamp.Before(out[j].TxnTimestamp)
		}
		return out[i].TxnID < out[j].TxnID
	})
	return out, nil
}

// FetchSchemeTransactions returns scheme records with timestamp in [start, end).
func (s *MemoryStore) FetchSchemeTransactions(_ context.Context, start, end time.Time) ([]*models.SchemeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.SchemeTransaction
	for _, t := range s.scheme {
		if inWindow(t.TxnTimestamp, start, end) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TxnTimestamp.Equal(out[j].TxnTimestamp) {
			return out[i].TxnTimestamp.Before(out[j].TxnTimestamp)
		}
		return out[i].TxnID < out[j].TxnID
	})
	return out, nil
}

// InsertBankTransactionIfAbsent inserts the record unless the identifier is
// already present.
func (s *MemoryStore) InsertBankTransactionIfAbsent(_ context.Context, txn *models.BankTransaction) (bool, error) {
	if err := txn.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bank[txn.TxnID]; exists {
		return false, nil
	}
	s.bank[txn.TxnID] = txn
	return true, nil
}

// InsertSchemeTransactionIfAbsent inserts the record unless the identifier is
// already present.
func (s *MemoryStore) InsertSchemeTransactionIfAbsent(_ context.Context, txn *models.SchemeTransaction) (bool, error) {
	if err := txn.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scheme[txn.TxnID]; exists {
		return false, nil
	}
	s.scheme[txn.TxnID] = txn
	return true, nil
}

// CreateBatch persists a new batch control record.
func (s *MemoryStore) CreateBatch(_ context.Context, b *batch.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *b
	s.batches[b.BatchID] = &clone
	return nil
}

// GetBatch returns a copy of the batch record, or ErrNotFound.
func (s *MemoryStore) GetBatch(_ context.Context, batchID string) (*batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *b
	return &clone, nil
}

// FinalizeBatch moves a PROCESSING batch to its terminal state with counters.
func (s *MemoryStore) FinalizeBatch(_ context.Context, batchID string, status batch.Status, endedAt time.Time, counters batch.Counters) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return ErrNotFound
	}
	if b.Status.IsTerminal() {
		return ErrAlreadyFinalized
	}

	b.Status = status
	b.EndedAt = &endedAt
	b.Counters = counters
	return nil
}

// InsertExceptionCases appends exception cases.
func (s *MemoryStore) InsertExceptionCases(_ context.Context, cases []*matcher.ExceptionCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exceptions = append(s.exceptions, cases...)
	return nil
}

// FetchExceptionCases returns the cases recorded for a batch, in insertion
// order.
func (s *MemoryStore) FetchExceptionCases(_ context.Context, batchID string) ([]*matcher.ExceptionCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*matcher.ExceptionCase
	for _, c := range s.exceptions {
		if c.BatchID == batchID {
			out = append(out, c)
		}
	}
	return out, nil
}
