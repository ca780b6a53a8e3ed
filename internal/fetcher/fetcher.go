// Package fetcher loads both ledger sides for a resolved batch window.
package fetcher

import (
	"context"
	"sync"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/models"
	"card-recon-engine/internal/store"
	"card-recon-engine/pkg/errors"
	"card-recon-engine/pkg/logger"
)

// LedgerWindow holds the complete record sets of both ledgers for one batch
// window.
type LedgerWindow struct {
	Bank   []*models.BankTransaction
	Scheme []*models.SchemeTransaction
}

// Total returns the number of records across both sides.
func (w *LedgerWindow) Total() int {
	return len(w.Bank) + len(w.Scheme)
}

// Fetcher retrieves all bank and scheme records whose timestamp falls in the
// half-open batch window. It is read-only against the store.
type Fetcher struct {
	reader store.LedgerReader
	log    logger.Logger
}

// New creates a fetcher over the given ledger reader.
func New(reader store.LedgerReader) *Fetcher {
	return &Fetcher{
		reader: reader,
		log:    logger.GetGlobalLogger().WithComponent("ledger_fetcher"),
	}
}

// FetchWindow loads both sides concurrently; the two reads are independent.
// Matching cannot start until both have completed, so the first error wins
// and fails the fetch.
func (f *Fetcher) FetchWindow(ctx context.Context, w batch.Window) (*LedgerWindow, error) {
	var (
		wg        sync.WaitGroup
		bank      []*models.BankTransaction
		scheme    []*models.SchemeTransaction
		bankErr   error
		schemeErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		bank, bankErr = f.reader.FetchBankTransactions(ctx, w.Start, w.End)
	}()
	go func() {
		defer wg.Done()
		scheme, schemeErr = f.reader.FetchSchemeTransactions(ctx, w.Start, w.End)
	}()
	wg.Wait()

	if bankErr != nil {
		return nil, errors.DataAccessError(errors.CodeQueryFailed, "fetch bank ledger", bankErr)
	}
	if schemeErr != nil {
		return nil, errors.DataAccessError(errors.CodeQueryFailed, "fetch scheme ledger", schemeErr)
	}

	f.log.WithFields(logger.Fields{
		"window_start": w.Start,
		"window_end":   w.End,
		"bank_count":   len(bank),
		"scheme_count": len(scheme),
	}).Info("Fetched ledger window")

	return &LedgerWindow{Bank: bank, Scheme: scheme}, nil
}
