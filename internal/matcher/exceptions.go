package matcher

import (
	"card-recon-engine/internal/models"
)

// ExceptionSide identifies which ledger side an exception case concerns.
type ExceptionSide string

const (
	SideBankOnly       ExceptionSide = "BANK_ONLY"
	SideSchemeOnly     ExceptionSide = "SCHEME_ONLY"
	SideAmbiguousFuzzy ExceptionSide = "AMBIGUOUS_FUZZY"
)

// ReasonCode explains why an exception case was raised.
type ReasonCode string

const (
	ReasonNoSchemeCounterpart      ReasonCode = "NO_SCHEME_COUNTERPART"
	ReasonNoBankCounterpart        ReasonCode = "NO_BANK_COUNTERPART"
	ReasonBelowConfidenceThreshold ReasonCode = "BELOW_CONFIDENCE_THRESHOLD"
)

// ExceptionCase is a record, or a near-match pair, that requires human
// reconciliation review. Cases are terminal: created once at batch end and
// never mutated; downstream review tooling consumes them.
type ExceptionCase struct {
	BatchID      string        `json:"batchId"`
	Side         ExceptionSide `json:"side"`
	BankTxnID    string        `json:"bankTxnId,omitempty"`
	SchemeTxnID  string        `json:"schemeTxnId,omitempty"`
	Reason       ReasonCode    `json:"reasonCode"`
	Score        float64       `json:"score,omitempty"`
	BankRecord   *models.BankTransaction   `json:"bankRecord,omitempty"`
	SchemeRecord *models.SchemeTransaction `json:"schemeRecord,omitempty"`
}

// ExceptionClassifier derives structured exception cases from a completed
// matching partition. Like the engine it is stateless.
type ExceptionClassifier struct{}

// NewExceptionClassifier creates a new classifier.
func NewExceptionClassifier() *ExceptionClassifier {
	return &ExceptionClassifier{}
}

// Classify emits one case per unmatched record on each side, plus one case
// per ambiguous near-miss pair. The ambiguous class exists so that
// likely-but-unconfirmed matches are reviewed rather than silently dropped
// into the unmatched totals.
func (c *ExceptionClassifier) Classify(batchID string, p *Partition) []*ExceptionCase {
	cases := make([]*ExceptionCase, 0, len(p.UnmatchedBank)+len(p.UnmatchedScheme)+len(p.NearMisses))

	for _, b := range p.UnmatchedBank {
		cases = append(cases, &ExceptionCase{
			BatchID:    batchID,
			Side:       SideBankOnly,
			BankTxnID:  b.TxnID,
			Reason:     ReasonNoSchemeCounterpart,
			BankRecord: b,
		})
	}

	for _, s := range p.UnmatchedScheme {
		cases = append(cases, &ExceptionCase{
			BatchID:      batchID,
			Side:         SideSchemeOnly,
			SchemeTxnID:  s.TxnID,
			Reason:       ReasonNoBankCounterpart,
			SchemeRecord: s,
		})
	}

	for _, nm := range p.NearMisses {
		cases = append(cases, &ExceptionCase{
			BatchID:      batchID,
			Side:         SideAmbiguousFuzzy,
			BankTxnID:    nm.Bank.TxnID,
			SchemeTxnID:  nm.Scheme.TxnID,
			Reason:       ReasonBelowConfidenceThreshold,
			Score:        nm.ConfidenceScore,
			BankRecord:   nm.Bank,
			SchemeRecord: nm.Scheme,
		})
	}

	return cases
}
