package cmd

import (
	"context"
	"fmt"

	"card-recon-engine/internal/parsers"
	"card-recon-engine/internal/store"

	"github.com/spf13/cobra"
)

var (
	bankFiles   []string
	schemeFiles []string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load ledger CSV files into the store",
	Long: `Load parses bank switch and scheme settlement CSV files and inserts
their rows into the store. Inserts are keyed on the transaction identifier,
so re-loading a file is safe: rows already present are counted as duplicates
and skipped.

Examples:
  reconengine load --bank bank_ledger.csv
  reconengine load --bank day1.csv --bank day2.csv --scheme visa_settlement.csv`,
	PreRunE: validateLoadFlags,
	RunE:    runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringSliceVarP(&bankFiles, "bank", "b", []string{}, "bank switch CSV file (repeatable)")
	loadCmd.Flags().StringSliceVarP(&schemeFiles, "scheme", "s", []string{}, "scheme settlement CSV file (repeatable)")
}

func validateLoadFlags(cmd *cobra.Command, args []string) error {
	if len(bankFiles) == 0 && len(schemeFiles) == 0 {
		return fmt.Errorf("at least one --bank or --scheme file is required")
	}
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ingester := parsers.NewIngester(st)
	ctx := context.Background()

	for _, path := range bankFiles {
		stats, err := ingester.LoadBankFile(ctx, path, nil)
		if err != nil {
			return fmt.Errorf("failed to load bank file %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, stats)
	}

	for _, path := range schemeFiles {
		stats, err := ingester.LoadSchemeFile(ctx, path, nil)
		if err != nil {
			return fmt.Errorf("failed to load scheme file %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, stats)
	}

	return nil
}
