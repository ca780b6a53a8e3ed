package parsers

import (
	"context"

	"card-recon-engine/internal/store"
	"card-recon-engine/pkg/errors"
	"card-recon-engine/pkg/logger"
)

// Ingester loads parsed ledger files into the store. Inserts are
// insert-if-absent on the transaction identifier, so re-loading the same file
// is a safe no-op for rows already present.
type Ingester struct {
	writer store.LedgerWriter
	log    logger.Logger
}

// NewIngester creates an ingester over the given ledger writer.
func NewIngester(writer store.LedgerWriter) *Ingester {
	return &Ingester{
		writer: writer,
		log:    logger.GetGlobalLogger().WithComponent("ledger_ingester"),
	}
}

// LoadBankFile parses a bank switch CSV file and inserts its valid rows.
func (ing *Ingester) LoadBankFile(ctx context.Context, path string, config *LedgerFileConfig) (*ParseStats, error) {
	parser, err := NewBankLedgerParser(config)
	if err != nil {
		return nil, err
	}

	txns, stats, err := parser.ParseFile(ctx, path)
	if err != nil {
		return stats, err
	}

	for _, txn := range txns {
		inserted, err := ing.writer.InsertBankTransactionIfAbsent(ctx, txn)
		if err != nil {
			return stats, errors.DataAccessError(errors.CodeWriteFailed, "insert bank transaction", err)
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Duplicates++
		}
	}

	ing.log.WithFields(logger.Fields{
		"file_path":  path,
		"inserted":   stats.Inserted,
		"duplicates": stats.Duplicates,
	}).Info("Bank ledger file loaded")

	return stats, nil
}

// LoadSchemeFile parses a scheme settlement CSV file and inserts its valid rows.
func (ing *Ingester) LoadSchemeFile(ctx context.Context, path string, config *LedgerFileConfig) (*ParseStats, error) {
	parser, err := NewSchemeFileParser(config)
	if err != nil {
		return nil, err
	}

	txns, stats, err := parser.ParseFile(ctx, path)
	if err != nil {
		return stats, err
	}

	for _, txn := range txns {
		inserted, err := ing.writer.InsertSchemeTransactionIfAbsent(ctx, txn)
		if err != nil {
			return stats, errors.DataAccessError(errors.CodeWriteFailed, "insert scheme transaction", err)
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Duplicates++
		}
	}

	ing.log.WithFields(logger.Fields{
		"file_path":  path,
		"inserted":   stats.Inserted,
		"duplicates": stats.Duplicates,
	}).Info("Scheme settlement file loaded")

	return stats, nil
}
