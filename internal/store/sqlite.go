package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/matcher"
	"card-recon-engine/internal/models"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// tsLayout is the fixed-width UTC timestamp format used in every table.
// Fixed width keeps lexicographic comparison chronological, which the
// half-open window queries rely on.
const tsLayout = "2006-01-02 15:04:05.000000000"

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- LedgerReader ---

// FetchBankTransactions returns bank-side records with timestamp in
// [start, end).
func (s *SQLiteStore) FetchBankTransactions(ctx context.Context, start, end time.Time) ([]*models.BankTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT txn_id, masked_card_number, amount, currency_code, txn_timestamp,
		       COALESCE(merchant_id, ''), COALESCE(terminal_id, ''),
		       COALESCE(response_code, ''), COALESCE(channel, ''),
		       COALESCE(auth_code, ''), COALESCE(raw_source, '')
		FROM bank_switch_ledger
		WHERE txn_timestamp >= ? AND txn_timestamp < ?
		ORDER BY txn_timestamp, txn_id`,
		start.UTC().Format(tsLayout), end.UTC().Format(tsLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query bank ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.BankTransaction
	for rows.Next() {
		var t models.BankTransaction
		var amountStr, tsStr, channelStr string
		if err := rows.Scan(&t.TxnID, &t.CardNumber, &amountStr, &t.Currency, &tsStr,
			&t.MerchantID, &t.TerminalID, &t.ResponseCode, &channelStr,
			&t.AuthCode, &t.RawSource); err != nil {
			return nil, fmt.Errorf("failed to scan bank transaction: %w", err)
		}

		if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("corrupt amount for bank transaction %s: %w", t.TxnID, err)
		}
		if t.TxnTimestamp, err = time.Parse(tsLayout, tsStr); err != nil {
			return nil, fmt.Errorf("corrupt timestamp for bank transaction %s: %w", t.TxnID, err)
		}
		t.TxnTimestamp = t.TxnTimestamp.UTC()
		t.Channel = models.Channel(channelStr)

		out = append(out, &t)
	}

	return out, rows.Err()
}

// FetchSchemeTransactions returns scheme-side records with timestamp in
// [start, end).
func (s *SQLiteStore) FetchSchemeTransactions(ctx context.Context, start, end time.Time) ([]*models.SchemeTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT txn_id, masked_card_number, amount, currency_code, txn_timestamp,
		       COALESCE(merchant_id, ''), COALESCE(terminal_id, ''),
		       COALESCE(response_code, ''), COALESCE(batch_file_id, ''),
		       COALESCE(scheme_name, ''), COALESCE(raw_source, '')
		FROM scheme_settlement_ledger
		WHERE txn_timestamp >= ? AND txn_timestamp < ?
		ORDER BY txn_timestamp, txn_id`,
		start.UTC().Format(tsLayout), end.UTC().Format(tsLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query scheme ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.SchemeTransaction
	for rows.Next() {
		var t models.SchemeTransaction
		var amountStr, tsStr string
		if err := rows.Scan(&t.TxnID, &t.CardNumber, &amountStr, &t.Currency, &tsStr,
			&t.MerchantID, &t.TerminalID, &t.ResponseCode, &t.BatchFileID,
			&t.SchemeName, &t.RawSource); err != nil {
			return nil, fmt.Errorf("failed to scan scheme transaction: %w", err)
		}

		if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("corrupt amount for scheme transaction %s: %w", t.TxnID, err)
		}
		if t.TxnTimestamp, err = time.Parse(tsLayout, tsStr); err != nil {
			return nil, fmt.Errorf("corrupt timestamp for scheme transaction %s: %w", t.TxnID, err)
		}
		t.TxnTimestamp = t.TxnTimestamp.UTC()

		out = append(out, &t)
	}

	return out, rows.Err()
}

// --- LedgerWriter ---

// InsertBankTransactionIfAbsent inserts the record unless one with the same
// identifier already exists.
func (s *SQLiteStore) InsertBankTransactionIfAbsent(ctx context.Context, txn *models.BankTransaction) (bool, error) {
	if err := txn.Validate(); err != nil {
		return false, fmt.Errorf("invalid bank transaction: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bank_switch_ledger
			(txn_id, masked_card_number, amount, currency_code, txn_timestamp,
			 merchant_id, terminal_id, response_code, channel, auth_code, raw_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.TxnID, txn.CardNumber, txn.Amount.StringFixed(2), txn.Currency,
		txn.TxnTimestamp.UTC().Format(tsLayout),
		txn.MerchantID, txn.TerminalID, txn.ResponseCode, string(txn.Channel),
		txn.AuthCode, txn.RawSource)
	if err != nil {
		return false, fmt.Errorf("failed to insert bank transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertSchemeTransactionIfAbsent inserts the record unless one with the same
// identifier already exists.
func (s *SQLiteStore) InsertSchemeTransactionIfAbsent(ctx context.Context, txn *models.SchemeTransaction) (bool, error) {
	if err := txn.Validate(); err != nil {
		return false, fmt.Errorf("invalid scheme transaction: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO scheme_settlement_ledger
			(txn_id, masked_card_number, amount, currency_code, txn_timestamp,
			 merchant_id, terminal_id, response_code, batch_file_id, scheme_name, raw_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.TxnID, txn.CardNumber, txn.Amount.StringFixed(2), txn.Currency,
		txn.TxnTimestamp.UTC().Format(tsLayout),
		txn.MerchantID, txn.TerminalID, txn.ResponseCode, txn.BatchFileID,
		txn.SchemeName, txn.RawSource)
	if err != nil {
		return false, fmt.Errorf("failed to insert scheme transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// --- BatchStore ---

// CreateBatch persists a new batch control record.
func (s *SQLiteStore) CreateBatch(ctx context.Context, b *batch.Batch) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_batch
			(batch_id, status, window_start, window_end, started_at, created_by, config_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.BatchID, string(b.Status),
		b.WindowStart.UTC().Format(tsLayout), b.WindowEnd.UTC().Format(tsLayout),
		b.StartedAt.UTC().Format(tsLayout), b.CreatedBy, b.ConfigSnapshot)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

// GetBatch returns the batch record, or ErrNotFound.
func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*batch.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, status, window_start, window_end, started_at, ended_at,
		       created_by, config_snapshot,
		       total_processed, exact_matches, fuzzy_matches,
		       unmatched_bank, unmatched_scheme, exceptions
		FROM reconciliation_batch
		WHERE batch_id = ?`, batchID)

	var b batch.Batch
	var status, windowStart, windowEnd, startedAt string
	var endedAt sql.NullString
	err := row.Scan(&b.BatchID, &status, &windowStart, &windowEnd, &startedAt, &endedAt,
		&b.CreatedBy, &b.ConfigSnapshot,
		&b.Counters.TotalProcessed, &b.Counters.ExactMatches, &b.Counters.FuzzyMatches,
		&b.Counters.UnmatchedBank, &b.Counters.UnmatchedScheme, &b.Counters.Exceptions)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	b.Status = batch.Status(status)
	if b.WindowStart, err = time.Parse(tsLayout, windowStart); err != nil {
		return nil, fmt.Errorf("corrupt window start for batch %s: %w", batchID, err)
	}
	if b.WindowEnd, err = time.Parse(tsLayout, windowEnd); err != nil {
		return nil, fmt.Errorf("corrupt window end for batch %s: %w", batchID, err)
	}
	if b.StartedAt, err = time.Parse(tsLayout, startedAt); err != nil {
		return nil, fmt.Errorf("corrupt start timestamp for batch %s: %w", batchID, err)
	}
	b.WindowStart = b.WindowStart.UTC()
	b.WindowEnd = b.WindowEnd.UTC()
	b.StartedAt = b.StartedAt.UTC()

	if endedAt.Valid {
		t, err := time.Parse(tsLayout, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt end timestamp for batch %s: %w", batchID, err)
		}
		t = t.UTC()
		b.EndedAt = &t
	}

	return &b, nil
}

// FinalizeBatch moves a PROCESSING batch to its terminal state and writes the
// counters, in one atomic statement. A batch that is already terminal is not
// touched: terminal states permit no further transitions.
func (s *SQLiteStore) FinalizeBatch(ctx context.Context, batchID string, status batch.Status, endedAt time.Time, counters batch.Counters) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_batch
		SET status = ?, ended_at = ?,
		    total_processed = ?, exact_matches = ?, fuzzy_matches = ?,
		    unmatched_bank = ?, unmatched_scheme = ?, exceptions = ?
		WHERE batch_id = ? AND status = ?`,
		string(status), endedAt.UTC().Format(tsLayout),
		counters.TotalProcessed, counters.ExactMatches, counters.FuzzyMatches,
		counters.UnmatchedBank, counters.UnmatchedScheme, counters.Exceptions,
		batchID, string(batch.StatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to finalize batch: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish unknown batch from already-terminal batch.
		if _, err := s.GetBatch(ctx, batchID); err != nil {
			return err
		}
		return ErrAlreadyFinalized
	}

	return nil
}

// --- ExceptionStore ---

// InsertExceptionCases appends exception cases for a batch. Cases are never
// updated or deleted.
func (s *SQLiteStore) InsertExceptionCases(ctx context.Context, cases []*matcher.ExceptionCase) error {
	if len(cases) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO exception_case
			(batch_id, side, bank_txn_id, scheme_txn_id, reason_code, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare exception insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(tsLayout)
	for _, c := range cases {
		if _, err := stmt.ExecContext(ctx,
			c.BatchID, string(c.Side), c.BankTxnID, c.SchemeTxnID,
			string(c.Reason), c.Score, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert exception case: %w", err)
		}
	}

	return tx.Commit()
}

// FetchExceptionCases returns the cases recorded for a batch, in insertion
// order.
func (s *SQLiteStore) FetchExceptionCases(ctx context.Context, batchID string) ([]*matcher.ExceptionCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, side, COALESCE(bank_txn_id, ''), COALESCE(scheme_txn_id, ''),
		       reason_code, score
		FROM exception_case
		WHERE batch_id = ?
		ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exception cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*matcher.ExceptionCase
	for rows.Next() {
		var c matcher.ExceptionCase
		var side, reason string
		if err := rows.Scan(&c.BatchID, &side, &c.BankTxnID, &c.SchemeTxnID,
			&reason, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan exception case: %w", err)
		}
		c.Side = matcher.ExceptionSide(side)
		c.Reason = matcher.ReasonCode(reason)
		out = append(out, &c)
	}

	return out, rows.Err()
}
