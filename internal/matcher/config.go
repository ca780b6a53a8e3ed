// Package matcher implements the core matching engine that pairs bank-switch
// ledger records against scheme-settlement ledger records.
//
// The engine runs in two phases:
//  1. Exact matching on a composite key (card number, amount, currency)
//     bucketed by calendar day to absorb clock and settlement-cycle skew.
//  2. Fuzzy matching on the remainders, using a weighted similarity score
//     over amount closeness, timestamp closeness and identity-field equality,
//     with hard filters applied before any scoring.
//
// Given identical inputs the engine always produces an identical partition:
// records are iterated in sorted order and every comparison has an explicit
// tie-break. This is a requirement for reproducible audit trails, and it is
// why fuzzy assignment is a greedy highest-score-first pass rather than an
// optimal bipartite matching.
package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchKind represents the classification of an accepted pairing.
type MatchKind int

const (
	// MatchExact is a pairing with full confidence: identical card number,
	// amount and currency within the same-day bucket.
	MatchExact MatchKind = iota

	// MatchFuzzy is a pairing accepted via weighted similarity scoring at or
	// above the configured confidence threshold.
	MatchFuzzy
)

// String returns the string representation of MatchKind
func (mk MatchKind) String() string {
	switch mk {
	case MatchExact:
		return "EXACT"
	case MatchFuzzy:
		return "FUZZY"
	default:
		return "Unknown"
	}
}

// Config holds the tunable parameters of the matching algorithm.
//
// The similarity weights and thresholds are deliberately configuration, not
// constants: different acquirers run with different settlement skew and
// amount drift, and operations teams tune these per deployment.
//
// Use the provided factory functions for common scenarios:
//   - DefaultConfig(): balanced approach for most deployments
//   - StrictConfig(): tight tolerances for critical reconciliation
//   - RelaxedConfig(): loose tolerances for exploratory runs
type Config struct {
	// AmountTolerance is the maximum absolute amount difference for a fuzzy
	// candidate. Pairs beyond this are never candidates. Zero requires exact
	// amounts.
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// TimeToleranceHours is the maximum timestamp difference, in hours, for a
	// fuzzy candidate. The time score decays linearly to 0 at this boundary.
	TimeToleranceHours int `json:"time_tolerance_hours"`

	// MinConfidenceScore is the minimum weighted score for a fuzzy pairing to
	// be accepted.
	MinConfidenceScore float64 `json:"min_confidence_score"`

	// SuspiciousScore is the lower bound above which a rejected candidate
	// pair is still surfaced for human review as an ambiguous near-miss.
	SuspiciousScore float64 `json:"suspicious_score"`

	// ScoringConcurrency bounds the number of goroutines used for the
	// parallel candidate-scoring step. Assignment itself is always a single
	// sequential pass.
	ScoringConcurrency int `json:"scoring_concurrency"`

	// Weights holds the relative importance of each scoring dimension.
	Weights Weights `json:"weights"`
}

// Weights defines the relative importance of the fuzzy scoring dimensions.
// Card and merchant equality are bonuses: they contribute their full weight
// on equality and nothing otherwise.
type Weights struct {
	AmountWeight   float64 `json:"amount_weight"`
	TimeWeight     float64 `json:"time_weight"`
	CardWeight     float64 `json:"card_weight"`
	MerchantWeight float64 `json:"merchant_weight"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		AmountTolerance:    decimal.NewFromFloat(0.10),
		TimeToleranceHours: 48,
		MinConfidenceScore: 0.60,
		SuspiciousScore:    0.40,
		ScoringConcurrency: 4,
		Weights: Weights{
			AmountWeight:   0.4,
			TimeWeight:     0.2,
			CardWeight:     0.3,
			MerchantWeight: 0.1,
		},
	}
}

// StrictConfig returns a configuration for strict matching
func StrictConfig() *Config {
	return &Config{
		AmountTolerance:    decimal.Zero,
		TimeToleranceHours: 24,
		MinConfidenceScore: 0.85,
		SuspiciousScore:    0.60,
		ScoringConcurrency: 4,
		Weights: Weights{
			AmountWeight:   0.5,
			TimeWeight:     0.2,
			CardWeight:     0.25,
			MerchantWeight: 0.05,
		},
	}
}

// RelaxedConfig returns a configuration for relaxed matching
func RelaxedConfig() *Config {
	return &Config{
		AmountTolerance:    decimal.NewFromFloat(1.00),
		TimeToleranceHours: 96,
		MinConfidenceScore: 0.50,
		SuspiciousScore:    0.30,
		ScoringConcurrency: 8,
		Weights: Weights{
			AmountWeight:   0.35,
			TimeWeight:     0.25,
			CardWeight:     0.3,
			MerchantWeight: 0.1,
		},
	}
}

// Validate checks if the matching configuration is valid
func (c *Config) Validate() error {
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", c.AmountTolerance.String())
	}

	if c.TimeToleranceHours <= 0 {
		return fmt.Errorf("time tolerance hours must be positive: %d", c.TimeToleranceHours)
	}

	if c.MinConfidenceScore <= 0.0 || c.MinConfidenceScore > 1.0 {
		return fmt.Errorf("minimum confidence score must be in (0.0, 1.0]: %f", c.MinConfidenceScore)
	}

	if c.SuspiciousScore < 0.0 || c.SuspiciousScore >= c.MinConfidenceScore {
		return fmt.Errorf("suspicious score must be in [0.0, min confidence): %f", c.SuspiciousScore)
	}

	if c.ScoringConcurrency <= 0 {
		return fmt.Errorf("scoring concurrency must be positive: %d", c.ScoringConcurrency)
	}

	return c.Weights.Validate()
}

// Validate checks if the matching weights are valid
func (w *Weights) Validate() error {
	for name, v := range map[string]float64{
		"amount":   w.AmountWeight,
		"time":     w.TimeWeight,
		"card":     w.CardWeight,
		"merchant": w.MerchantWeight,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, v)
		}
	}

	total := w.AmountWeight + w.TimeWeight + w.CardWeight + w.MerchantWeight
	if total < 0.9 || total > 1.1 {
		return fmt.Errorf("weights should sum to approximately 1.0, got %f", total)
	}

	return nil
}

// Clone creates a deep copy of the matching configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	return &clone
}

// TimeTolerance returns the fuzzy time window as a duration.
func (c *Config) TimeTolerance() time.Duration {
	return time.Duration(c.TimeToleranceHours) * time.Hour
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{AmountTolerance: %s, TimeTolerance: %dh, MinConfidence: %.2f, Suspicious: %.2f}",
		c.AmountTolerance.String(), c.TimeToleranceHours, c.MinConfidenceScore, c.SuspiciousScore)
}
