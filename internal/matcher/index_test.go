package matcher

import (
	"testing"
	"time"

	"card-recon-engine/internal/models"
)

func TestExactKeyNormalizesAmountScale(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	a := bankTxn("B1", "411111******1111", "100.5", "USD", ts)
	b := schemeTxn("S1", "411111******1111", "100.50", "USD", ts)

	if exactBankKey(a) != exactSchemeKey(b) {
		t.Errorf("expected equal keys, got %q vs %q", exactBankKey(a), exactSchemeKey(b))
	}
}

func TestExactKeyUsesUTCDay(t *testing.T) {
	// 23:30 in UTC-2 is 01:30 UTC the next day.
	zone := time.FixedZone("UTC-2", -2*60*60)
	local := bankTxn("B1", "4111", "100.00", "USD",
		time.Date(2024, 3, 15, 23, 30, 0, 0, zone))
	utc := bankTxn("B2", "4111", "100.00", "USD",
		time.Date(2024, 3, 16, 1, 30, 0, 0, time.UTC))

	if exactBankKey(local) != exactBankKey(utc) {
		t.Errorf("expected same UTC day bucket, got %q vs %q",
			exactBankKey(local), exactBankKey(utc))
	}
}

func TestSchemeIndexCandidates(t *testing.T) {
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	records := []*models.SchemeTransaction{
		schemeTxn("S1", "4111", "100.00", "USD", base),
		schemeTxn("S2", "4111", "100.00", "USD", base.Add(40*time.Hour)),
		schemeTxn("S3", "4111", "100.00", "USD", base.Add(60*time.Hour)),
		schemeTxn("S4", "4111", "100.00", "EUR", base),
	}
	idx := NewSchemeIndex(records)
	cfg := DefaultConfig() // 48h time tolerance

	bank := bankTxn("B1", "4111", "100.00", "USD", base)
	got := idx.Candidates(bank, cfg)

	// S3 is beyond the time tolerance, S4 is a different currency.
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].TxnID != "S1" || got[1].TxnID != "S2" {
		t.Errorf("expected [S1 S2] in index order, got [%s %s]", got[0].TxnID, got[1].TxnID)
	}
}

func TestSchemeIndexCandidatesSpanMidnight(t *testing.T) {
	// A record late on the previous day must still be a candidate.
	bankTS := time.Date(2024, 3, 16, 0, 30, 0, 0, time.UTC)
	records := []*models.SchemeTransaction{
		schemeTxn("S1", "4111", "100.00", "USD",
			time.Date(2024, 3, 15, 23, 45, 0, 0, time.UTC)),
	}
	idx := NewSchemeIndex(records)

	got := idx.Candidates(bankTxn("B1", "4111", "100.00", "USD", bankTS), DefaultConfig())
	if len(got) != 1 {
		t.Fatalf("expected candidate across midnight, got %d", len(got))
	}
}

func TestSchemeIndexDoesNotMutateInput(t *testing.T) {
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	records := []*models.SchemeTransaction{
		schemeTxn("S2", "4111", "100.00", "USD", base.Add(time.Hour)),
		schemeTxn("S1", "4111", "100.00", "USD", base),
	}

	NewSchemeIndex(records)

	if records[0].TxnID != "S2" || records[1].TxnID != "S1" {
		t.Error("index construction must not reorder the caller's slice")
	}
}

func TestSortBankRecordsIsDeterministic(t *testing.T) {
	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	records := []*models.BankTransaction{
		bankTxn("B3", "4111", "1.00", "USD", ts),
		bankTxn("B1", "4111", "1.00", "USD", ts),
		bankTxn("B2", "4111", "1.00", "USD", ts.Add(-time.Hour)),
	}

	sortBankRecords(records)

	want := []string{"B2", "B1", "B3"}
	for i, id := range want {
		if records[i].TxnID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, records[i].TxnID)
		}
	}
}
