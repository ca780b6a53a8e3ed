package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; schema_version tracks the last applied
// index so re-opening an existing database is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS bank_switch_ledger (
		txn_id             TEXT PRIMARY KEY,
		masked_card_number TEXT NOT NULL,
		amount             TEXT NOT NULL,
		currency_code      TEXT NOT NULL,
		txn_timestamp      TEXT NOT NULL,
		merchant_id        TEXT,
		terminal_id        TEXT,
		response_code      TEXT,
		channel            TEXT,
		auth_code          TEXT,
		raw_source         TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bank_txn_timestamp
		ON bank_switch_ledger (txn_timestamp)`,
	`CREATE TABLE IF NOT EXISTS scheme_settlement_ledger (
		txn_id             TEXT PRIMARY KEY,
		masked_card_number TEXT NOT NULL,
		amount             TEXT NOT NULL,
		currency_code      TEXT NOT NULL,
		txn_timestamp      TEXT NOT NULL,
		merchant_id        TEXT,
		terminal_id        TEXT,
		response_code      TEXT,
		batch_file_id      TEXT,
		scheme_name        TEXT,
		raw_source         TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheme_txn_timestamp
		ON scheme_settlement_ledger (txn_timestamp)`,
	`CREATE TABLE IF NOT EXISTS reconciliation_batch (
		batch_id          TEXT PRIMARY KEY,
		status            TEXT NOT NULL,
		window_start      TEXT NOT NULL,
		window_end        TEXT NOT NULL,
		started_at        TEXT NOT NULL,
		ended_at          TEXT,
		created_by        TEXT NOT NULL,
		config_snapshot   TEXT NOT NULL,
		total_processed   INTEGER NOT NULL DEFAULT 0,
		exact_matches     INTEGER NOT NULL DEFAULT 0,
		fuzzy_matches     INTEGER NOT NULL DEFAULT 0,
		unmatched_bank    INTEGER NOT NULL DEFAULT 0,
		unmatched_scheme  INTEGER NOT NULL DEFAULT 0,
		exceptions        INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS exception_case (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id      TEXT NOT NULL,
		side          TEXT NOT NULL,
		bank_txn_id   TEXT,
		scheme_txn_id TEXT,
		reason_code   TEXT NOT NULL,
		score         REAL,
		created_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_exception_batch
		ON exception_case (batch_id)`,
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}

		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
