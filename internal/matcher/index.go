package matcher

import (
	"fmt"
	"sort"
	"time"

	"card-recon-engine/internal/models"
)

// exactKey is the composite key used by the exact-match phase: masked card
// number, amount at two decimal places, currency, and the UTC calendar day
// bucket of the timestamp.
func exactBankKey(t *models.BankTransaction) string {
	return exactKey(t.CardNumber, t.Amount.StringFixed(2), t.Currency, t.TxnTimestamp)
}

func exactSchemeKey(t *models.SchemeTransaction) string {
	return exactKey(t.CardNumber, t.Amount.StringFixed(2), t.Currency, t.TxnTimestamp)
}

func exactKey(card, amount, currency string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", card, amount, currency, ts.UTC().Format("2006-01-02"))
}

// SchemeIndex buckets scheme-side records by currency and UTC calendar day so
// the fuzzy phase only scores candidates that can pass the hard filters.
type SchemeIndex struct {
	// byCurrencyDay maps "CUR|YYYY-MM-DD" to scheme records on that day.
	byCurrencyDay map[string][]*models.SchemeTransaction

	// All holds every indexed record in deterministic order
	// (timestamp, then record identifier).
	All []*models.SchemeTransaction
}

// NewSchemeIndex builds an index over the given scheme records. The input
// slice is not modified; the index keeps its own sorted view.
func NewSchemeIndex(records []*models.SchemeTransaction) *SchemeIndex {
	idx := &SchemeIndex{
		byCurrencyDay: make(map[string][]*models.SchemeTransaction),
		All:           make([]*models.SchemeTransaction, len(records)),
	}
	copy(idx.All, records)
	sortSchemeRecords(idx.All)

	for _, rec := range idx.All {
		key := currencyDayKey(rec.Currency, rec.TxnTimestamp)
		idx.byCurrencyDay[key] = append(idx.byCurrencyDay[key], rec)
	}

	return idx
}

// Candidates returns the scheme records that could pair with the given bank
// record: same currency, timestamp within the configured tolerance. Results
// are in deterministic index order.
func (idx *SchemeIndex) Candidates(bank *models.BankTransaction, cfg *Config) []*models.SchemeTransaction {
	window := cfg.TimeTolerance()
	lo := bank.TxnTimestamp.Add(-window)
	hi := bank.TxnTimestamp.Add(window)

	var out []*models.SchemeTransaction
	for day := truncateDay(lo); !day.After(truncateDay(hi)); day = day.AddDate(0, 0, 1) {
		key := currencyDayKey(bank.Currency, day)
		for _, rec := range idx.byCurrencyDay[key] {
			diff := bank.TxnTimestamp.Sub(rec.TxnTimestamp)
			if diff < 0 {
				diff = -diff
			}
			if diff <= window {
				out = append(out, rec)
			}
		}
	}

	return out
}

func currencyDayKey(currency string, ts time.Time) string {
	return currency + "|" + ts.UTC().Format("2006-01-02")
}

func truncateDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// sortBankRecords orders bank records by timestamp then identifier. Every
// engine pass iterates this order so the output partition is reproducible.
func sortBankRecords(records []*models.BankTransaction) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].TxnTimestamp.Equal(records[j].TxnTimestamp) {
			return records[i].TxnTimestamp.Before(records[j].TxnTimestamp)
		}
		return records[i].TxnID < records[j].TxnID
	})
}

func sortSchemeRecords(records []*models.SchemeTransaction) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].TxnTimestamp.Equal(records[j].TxnTimestamp) {
			return records[i].TxnTimestamp.Before(records[j].TxnTimestamp)
		}
		return records[i].TxnID < records[j].TxnID
	})
}
