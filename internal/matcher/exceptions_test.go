package matcher

import (
	"testing"
	"time"

	"card-recon-engine/internal/models"
)

func TestClassifyEmptyPartition(t *testing.T) {
	classifier := NewExceptionClassifier()

	cases := classifier.Classify("batch-1", &Partition{})
	if len(cases) != 0 {
		t.Fatalf("expected no cases for empty partition, got %d", len(cases))
	}
}

func TestClassify(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	unmatchedBank := bankTxn("B1", "411111******1111", "100.00", "USD", ts)
	unmatchedScheme := schemeTxn("S1", "555555******4444", "200.00", "USD", ts)
	nmBank := bankTxn("B2", "411111******1111", "300.00", "USD", ts)
	nmScheme := schemeTxn("S2", "400000******0002", "300.00", "USD", ts.Add(20*time.Hour))

	p := &Partition{
		UnmatchedBank:   []*models.BankTransaction{unmatchedBank, nmBank},
		UnmatchedScheme: []*models.SchemeTransaction{unmatchedScheme, nmScheme},
		NearMisses: []*MatchResult{
			{
				Bank:            nmBank,
				Scheme:          nmScheme,
				Kind:            MatchFuzzy,
				ConfidenceScore: 0.52,
			},
		},
	}

	classifier := NewExceptionClassifier()
	cases := classifier.Classify("batch-1", p)

	if len(cases) != 5 {
		t.Fatalf("expected 5 cases, got %d", len(cases))
	}

	bySide := make(map[ExceptionSide][]*ExceptionCase)
	for _, c := range cases {
		if c.BatchID != "batch-1" {
			t.Errorf("case carries wrong batch ID: %s", c.BatchID)
		}
		bySide[c.Side] = append(bySide[c.Side], c)
	}

	if len(bySide[SideBankOnly]) != 2 {
		t.Errorf("expected 2 bank-only cases, got %d", len(bySide[SideBankOnly]))
	}
	for _, c := range bySide[SideBankOnly] {
		if c.Reason != ReasonNoSchemeCounterpart {
			t.Errorf("bank-only case carries reason %s", c.Reason)
		}
		if c.BankTxnID == "" || c.SchemeTxnID != "" {
			t.Error("bank-only case must reference only the bank record")
		}
	}

	if len(bySide[SideSchemeOnly]) != 2 {
		t.Errorf("expected 2 scheme-only cases, got %d", len(bySide[SideSchemeOnly]))
	}
	for _, c := range bySide[SideSchemeOnly] {
		if c.Reason != ReasonNoBankCounterpart {
			t.Errorf("scheme-only case carries reason %s", c.Reason)
		}
	}

	ambiguous := bySide[SideAmbiguousFuzzy]
	if len(ambiguous) != 1 {
		t.Fatalf("expected 1 ambiguous case, got %d", len(ambiguous))
	}
	amb := ambiguous[0]
	if amb.Reason != ReasonBelowConfidenceThreshold {
		t.Errorf("ambiguous case carries reason %s", amb.Reason)
	}
	if amb.BankTxnID != "B2" || amb.SchemeTxnID != "S2" {
		t.Errorf("ambiguous case references wrong records: %s / %s", amb.BankTxnID, amb.SchemeTxnID)
	}
	if amb.Score != 0.52 {
		t.Errorf("ambiguous case carries score %f", amb.Score)
	}
}
