package matcher

import (
	"sort"
	"sync"
	"time"

	"card-recon-engine/internal/models"
	"card-recon-engine/pkg/errors"
	"card-recon-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// Engine pairs bank-switch records against scheme-settlement records for a
// single batch window. It is a pure function over the record sets supplied to
// it and owns no persistent state; a single Engine may be shared across
// batches.
type Engine struct {
	config *Config
	log    logger.Logger
}

// MatchResult pairs one bank record with one scheme record.
type MatchResult struct {
	Bank             *models.BankTransaction   `json:"bank"`
	Scheme           *models.SchemeTransaction `json:"scheme"`
	Kind             MatchKind                 `json:"kind"`
	ConfidenceScore  float64                   `json:"confidence_score"`
	AmountDifference decimal.Decimal           `json:"amount_difference"`
	TimeDifference   time.Duration             `json:"time_difference"`
}

// Partition is the complete output of a reconciliation pass. Every input
// record appears in exactly one of the exact pairs, the fuzzy pairs, or the
// unmatched remainders.
type Partition struct {
	ExactMatches    []*MatchResult              `json:"exact_matches"`
	FuzzyMatches    []*MatchResult              `json:"fuzzy_matches"`
	UnmatchedBank   []*models.BankTransaction   `json:"unmatched_bank"`
	UnmatchedScheme []*models.SchemeTransaction `json:"unmatched_scheme"`

	// NearMisses are candidate pairs that scored above the suspicious
	// threshold but below the accept threshold, where both records ended the
	// run unmatched. They are surfaced as ambiguous exceptions so likely
	// matches are never silently under-reported.
	NearMisses []*MatchResult `json:"near_misses,omitempty"`
}

// NewEngine creates a matching engine with the given configuration. A nil
// configuration selects the defaults.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{
		config: config,
		log:    logger.GetGlobalLogger().WithComponent("matching_engine"),
	}
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// Reconcile partitions the two record sets into exact matches, fuzzy matches
// and unmatched remainders. Given identical inputs the partition is identical
// on every run.
func (e *Engine) Reconcile(bank []*models.BankTransaction, scheme []*models.SchemeTransaction) (*Partition, error) {
	if err := e.config.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfiguration, errors.CodeInvalidConfig,
			"invalid matching configuration")
	}

	// Work on sorted copies so the caller's slices are untouched and every
	// pass below iterates a reproducible order.
	bankSorted := make([]*models.BankTransaction, len(bank))
	copy(bankSorted, bank)
	sortBankRecords(bankSorted)

	schemeSorted := make([]*models.SchemeTransaction, len(scheme))
	copy(schemeSorted, scheme)
	sortSchemeRecords(schemeSorted)

	p := &Partition{}

	bankRemainder, schemeRemainder := e.matchExact(bankSorted, schemeSorted, p)

	e.log.WithFields(logger.Fields{
		"exact_matches":    len(p.ExactMatches),
		"bank_remainder":   len(bankRemainder),
		"scheme_remainder": len(schemeRemainder),
	}).Debug("Exact phase complete")

	e.matchFuzzy(bankRemainder, schemeRemainder, p)

	e.log.WithFields(logger.Fields{
		"fuzzy_matches":    len(p.FuzzyMatches),
		"unmatched_bank":   len(p.UnmatchedBank),
		"unmatched_scheme": len(p.UnmatchedScheme),
		"near_misses":      len(p.NearMisses),
	}).Debug("Fuzzy phase complete")

	if err := verifyPartition(len(bank), len(scheme), p); err != nil {
		return nil, err
	}

	return p, nil
}

// matchExact runs phase 1: records colliding on the composite key with
// exactly one candidate on each side become exact pairs. Everything else
// flows to the fuzzy phase.
func (e *Engine) matchExact(
	bank []*models.BankTransaction,
	scheme []*models.SchemeTransaction,
	p *Partition,
) ([]*models.BankTransaction, []*models.SchemeTransaction) {

	bankByKey := make(map[string][]*models.BankTransaction)
	for _, b := range bank {
		key := exactBankKey(b)
		bankByKey[key] = append(bankByKey[key], b)
	}

	schemeByKey := make(map[string][]*models.SchemeTransaction)
	for _, s := range scheme {
		key := exactSchemeKey(s)
		schemeByKey[key] = append(schemeByKey[key], s)
	}

	matchedBank := make(map[string]bool)
	matchedScheme := make(map[string]bool)

	// Iterate the sorted bank slice, not the map, for deterministic output
	// order.
	for _, b := range bank {
		key := exactBankKey(b)
		if len(bankByKey[key]) != 1 || len(schemeByKey[key]) != 1 {
			// Ambiguous collisions are left to the fuzzy phase rather than
			// guessed at here.
			continue
		}

		s := schemeByKey[key][0]
		p.ExactMatches = append(p.ExactMatches, &MatchResult{
			Bank:             b,
			Scheme:           s,
			Kind:             MatchExact,
			ConfidenceScore:  1.0,
			AmountDifference: decimal.Zero,
			TimeDifference:   absDuration(b.TxnTimestamp.Sub(s.TxnTimestamp)),
		})
		matchedBank[b.TxnID] = true
		matchedScheme[s.TxnID] = true
	}

	var bankRemainder []*models.BankTransaction
	for _, b := range bank {
		if !matchedBank[b.TxnID] {
			bankRemainder = append(bankRemainder, b)
		}
	}

	var schemeRemainder []*models.SchemeTransaction
	for _, s := range scheme {
		if !matchedScheme[s.TxnID] {
			schemeRemainder = append(schemeRemainder, s)
		}
	}

	return bankRemainder, schemeRemainder
}

// scoredPair is one candidate pairing produced by the scoring map step.
type scoredPair struct {
	bank             *models.BankTransaction
	scheme           *models.SchemeTransaction
	score            float64
	amountDifference decimal.Decimal
	timeDifference   time.Duration
}

// matchFuzzy runs phase 2: candidate scoring in parallel, then a single
// sequential greedy assignment pass in descending score order.
func (e *Engine) matchFuzzy(
	bank []*models.BankTransaction,
	scheme []*models.SchemeTransaction,
	p *Partition,
) {
	idx := NewSchemeIndex(scheme)

	pairs := e.scoreCandidates(bank, idx)

	// Deterministic assignment order: score descending, then earliest bank
	// timestamp, then bank identifier, then scheme identifier.
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		if !pairs[i].bank.TxnTimestamp.Equal(pairs[j].bank.TxnTimestamp) {
			return pairs[i].bank.TxnTimestamp.Before(pairs[j].bank.TxnTimestamp)
		}
		if pairs[i].bank.TxnID != pairs[j].bank.TxnID {
			return pairs[i].bank.TxnID < pairs[j].bank.TxnID
		}
		return pairs[i].scheme.TxnID < pairs[j].scheme.TxnID
	})

	usedBank := make(map[string]bool)
	usedScheme := make(map[string]bool)

	for _, pair := range pairs {
		if pair.score < e.config.MinConfidenceScore {
			break // sorted descending; everything below is a near-miss at best
		}
		if usedBank[pair.bank.TxnID] || usedScheme[pair.scheme.TxnID] {
			continue
		}

		p.FuzzyMatches = append(p.FuzzyMatches, &MatchResult{
			Bank:             pair.bank,
			Scheme:           pair.scheme,
			Kind:             MatchFuzzy,
			ConfidenceScore:  pair.score,
			AmountDifference: pair.amountDifference,
			TimeDifference:   pair.timeDifference,
		})
		usedBank[pair.bank.TxnID] = true
		usedScheme[pair.scheme.TxnID] = true
	}

	for _, b := range bank {
		if !usedBank[b.TxnID] {
			p.UnmatchedBank = append(p.UnmatchedBank, b)
		}
	}
	for _, s := range scheme {
		if !usedScheme[s.TxnID] {
			p.UnmatchedScheme = append(p.UnmatchedScheme, s)
		}
	}

	// Near-misses: below-threshold candidates between records that ended the
	// run unmatched on both sides. These feed the ambiguous exception class.
	for _, pair := range pairs {
		if pair.score >= e.config.MinConfidenceScore {
			continue
		}
		if usedBank[pair.bank.TxnID] || usedScheme[pair.scheme.TxnID] {
			continue
		}
		p.NearMisses = append(p.NearMisses, &MatchResult{
			Bank:             pair.bank,
			Scheme:           pair.scheme,
			Kind:             MatchFuzzy,
			ConfidenceScore:  pair.score,
			AmountDifference: pair.amountDifference,
			TimeDifference:   pair.timeDifference,
		})
	}
}

// scoreCandidates is the parallel map step: each worker scores a slice of the
// bank remainder against the scheme index. The merged result feeds the
// sequential assignment pass; ordering there makes worker scheduling
// invisible in the output.
func (e *Engine) scoreCandidates(bank []*models.BankTransaction, idx *SchemeIndex) []scoredPair {
	workers := e.config.ScoringConcurrency
	if workers > len(bank) {
		workers = len(bank)
	}
	if workers <= 1 {
		return e.scoreChunk(bank, idx)
	}

	chunkSize := (len(bank) + workers - 1) / workers
	results := make([][]scoredPair, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > len(bank) {
			end = len(bank)
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(w int, chunk []*models.BankTransaction) {
			defer wg.Done()
			results[w] = e.scoreChunk(chunk, idx)
		}(w, bank[start:end])
	}
	wg.Wait()

	var merged []scoredPair
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}

func (e *Engine) scoreChunk(bank []*models.BankTransaction, idx *SchemeIndex) []scoredPair {
	var out []scoredPair

	for _, b := range bank {
		for _, s := range idx.Candidates(b, e.config) {
			pair, ok := e.score(b, s)
			if ok && pair.score >= e.config.SuspiciousScore {
				out = append(out, pair)
			}
		}
	}

	return out
}

// score applies the hard filters and computes the weighted similarity for one
// candidate pairing. ok is false when a hard filter rejects the pair.
func (e *Engine) score(b *models.BankTransaction, s *models.SchemeTransaction) (scoredPair, bool) {
	// Hard filters: these reject the pair outright, regardless of how close
	// the other dimensions are.
	if b.Currency != s.Currency {
		return scoredPair{}, false
	}

	amountDiff := b.Amount.Sub(s.Amount).Abs()
	if amountDiff.GreaterThan(e.config.AmountTolerance) {
		return scoredPair{}, false
	}

	timeDiff := absDuration(b.TxnTimestamp.Sub(s.TxnTimestamp))
	window := e.config.TimeTolerance()
	if timeDiff > window {
		return scoredPair{}, false
	}

	amountScore := 1.0
	if !e.config.AmountTolerance.IsZero() {
		ratio, _ := amountDiff.Div(e.config.AmountTolerance).Float64()
		amountScore = 1.0 - ratio
	}

	timeScore := 1.0 - float64(timeDiff)/float64(window)

	cardScore := 0.0
	if b.CardNumber != "" && b.CardNumber == s.CardNumber {
		cardScore = 1.0
	}

	// Merchant identity only contributes when both sides carry it.
	merchantScore := 0.0
	if b.MerchantID != "" && b.MerchantID == s.MerchantID {
		merchantScore = 1.0
	}

	w := e.config.Weights
	score := amountScore*w.AmountWeight +
		timeScore*w.TimeWeight +
		cardScore*w.CardWeight +
		merchantScore*w.MerchantWeight

	return scoredPair{
		bank:             b,
		scheme:           s,
		score:            score,
		amountDifference: amountDiff,
		timeDifference:   timeDiff,
	}, true
}

// verifyPartition checks the partition-completeness and no-double-use
// invariants. A violation here is a defect in the engine itself and must
// fail the batch instead of producing wrong counters.
func verifyPartition(bankTotal, schemeTotal int, p *Partition) error {
	seenBank := make(map[string]bool)
	seenScheme := make(map[string]bool)

	countBank := func(id string) error {
		if seenBank[id] {
			return errors.InvariantError(errors.CodeRecordDoubleUse,
				"bank record "+id+" appears in more than one partition")
		}
		seenBank[id] = true
		return nil
	}
	countScheme := func(id string) error {
		if seenScheme[id] {
			return errors.InvariantError(errors.CodeRecordDoubleUse,
				"scheme record "+id+" appears in more than one partition")
		}
		seenScheme[id] = true
		return nil
	}

	for _, m := range p.ExactMatches {
		if err := countBank(m.Bank.TxnID); err != nil {
			return err
		}
		if err := countScheme(m.Scheme.TxnID); err != nil {
			return err
		}
	}
	for _, m := range p.FuzzyMatches {
		if err := countBank(m.Bank.TxnID); err != nil {
			return err
		}
		if err := countScheme(m.Scheme.TxnID); err != nil {
			return err
		}
	}
	for _, b := range p.UnmatchedBank {
		if err := countBank(b.TxnID); err != nil {
			return err
		}
	}
	for _, s := range p.UnmatchedScheme {
		if err := countScheme(s.TxnID); err != nil {
			return err
		}
	}

	if len(seenBank) != bankTotal || len(seenScheme) != schemeTotal {
		return errors.InvariantError(errors.CodeRecordDropped,
			"partition does not cover every input record")
	}

	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
