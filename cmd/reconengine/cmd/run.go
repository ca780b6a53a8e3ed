package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/matcher"
	"card-recon-engine/internal/orchestrator"
	"card-recon-engine/internal/reporter"
	"card-recon-engine/internal/store"

	"github.com/spf13/cobra"
)

const windowFlagLayout = "2006-01-02T15:04:05"

var (
	windowStart  string
	windowEnd    string
	createdBy    string
	outputFormat string
	outputFile   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation batch synchronously",
	Long: `Run creates a reconciliation batch, executes it to completion, and
prints a report. Without an explicit window the batch covers the default
trailing window ending now.

Examples:
  reconengine run
  reconengine run --window-start 2024-03-01T00:00:00 --window-end 2024-03-08T00:00:00
  reconengine run --profile strict --output-format json`,
	PreRunE: validateRunFlags,
	RunE:    runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&windowStart, "window-start", "", "window start, inclusive (YYYY-MM-DDTHH:MM:SS, UTC)")
	runCmd.Flags().StringVar(&windowEnd, "window-end", "", "window end, exclusive (YYYY-MM-DDTHH:MM:SS, UTC)")
	runCmd.Flags().StringVar(&createdBy, "created-by", "", "operator recorded on the batch (default SYSTEM)")
	runCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	runCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	addMatchingFlags(runCmd)
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	if (windowStart == "") != (windowEnd == "") {
		return fmt.Errorf("--window-start and --window-end must be provided together")
	}
	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format: %s", outputFormat)
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	matchCfg, err := matchingConfigFromFlags()
	if err != nil {
		return err
	}

	snapshot, err := buildConfigSnapshot(matchCfg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(st, matcher.NewEngine(matchCfg), nil)
	defer orch.Close()

	ctx := context.Background()

	b, err := orch.Create(ctx, createdBy, snapshot)
	if err != nil {
		return err
	}

	execErr := orch.Execute(ctx, b.BatchID)

	// Report the terminal batch state even when execution failed; FAILED is a
	// legitimate, auditable outcome.
	final, err := orch.GetBatch(ctx, b.BatchID)
	if err != nil {
		return err
	}

	cases, err := st.FetchExceptionCases(ctx, b.BatchID)
	if err != nil {
		return err
	}

	if err := writeReport(final, cases); err != nil {
		return err
	}

	return execErr
}

// buildConfigSnapshot captures the effective settings of this run as the
// batch's configuration snapshot, including the explicit window when one was
// given.
func buildConfigSnapshot(matchCfg *matcher.Config) (string, error) {
	snapshot := map[string]interface{}{
		"matching": matchCfg,
	}

	if windowStart != "" {
		start, err := time.Parse(windowFlagLayout, windowStart)
		if err != nil {
			return "", fmt.Errorf("invalid --window-start: %w", err)
		}
		end, err := time.Parse(windowFlagLayout, windowEnd)
		if err != nil {
			return "", fmt.Errorf("invalid --window-end: %w", err)
		}
		if !end.After(start) {
			return "", fmt.Errorf("--window-end must be after --window-start")
		}

		snapshot["batchWindow"] = map[string]string{
			"windowStart": start.Format(windowFlagLayout),
			"windowEnd":   end.Format(windowFlagLayout),
		}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to build config snapshot: %w", err)
	}
	return string(data), nil
}

func writeReport(b *batch.Batch, cases []*matcher.ExceptionCase) error {
	reportCfg := reporter.DefaultReportConfig()
	reportCfg.Format = reporter.OutputFormat(outputFormat)

	gen, err := reporter.NewReportGenerator(reportCfg)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	return gen.GenerateReport(b, cases, out)
}
