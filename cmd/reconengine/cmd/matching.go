package cmd

import (
	"fmt"

	"card-recon-engine/internal/matcher"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	matchProfile    string
	amountTolerance float64
	timeTolerance   int
	minConfidence   float64
)

// addMatchingFlags registers the fuzzy matching tuning flags on a command.
// Zero values mean "keep the profile's setting".
func addMatchingFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&matchProfile, "profile", "default", "matching profile: default, strict, relaxed")
	cmd.Flags().Float64VarP(&amountTolerance, "amount-tolerance", "a", 0, "absolute amount tolerance for fuzzy matching (0 keeps profile value)")
	cmd.Flags().IntVarP(&timeTolerance, "time-tolerance", "t", 0, "timestamp tolerance in hours for fuzzy matching (0 keeps profile value)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "minimum confidence score for a fuzzy match (0 keeps profile value)")
}

// matchingConfigFromFlags builds the engine configuration from the selected
// profile plus any explicit overrides.
func matchingConfigFromFlags() (*matcher.Config, error) {
	var cfg *matcher.Config
	switch matchProfile {
	case "", "default":
		cfg = matcher.DefaultConfig()
	case "strict":
		cfg = matcher.StrictConfig()
	case "relaxed":
		cfg = matcher.RelaxedConfig()
	default:
		return nil, fmt.Errorf("unknown matching profile: %s", matchProfile)
	}

	if amountTolerance > 0 {
		cfg.AmountTolerance = decimal.NewFromFloat(amountTolerance)
	}
	if timeTolerance > 0 {
		cfg.TimeToleranceHours = timeTolerance
	}
	if minConfidence > 0 {
		cfg.MinConfidenceScore = minConfidence
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching configuration: %w", err)
	}

	return cfg, nil
}
