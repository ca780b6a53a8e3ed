// Package reporter renders reconciliation batch results for operators.
//
// Reports are generated from a finished batch record plus its exception
// cases. Three formats are supported: console for terminal display, JSON for
// programmatic consumption, and CSV for handing exception worklists to
// operations teams.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/matcher"
)

// OutputFormat selects the report rendering.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeExceptions bool `json:"include_exceptions"`
	MaxExceptions     int  `json:"max_exceptions"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeExceptions: true,
		MaxExceptions:     0, // unlimited
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxExceptions < 0 {
		return fmt.Errorf("max exceptions cannot be negative, got %d", c.MaxExceptions)
	}
	return nil
}

// ReportGenerator renders batch reports in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a generator with the given configuration. A nil
// config selects the defaults.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the batch and its exception cases to the writer.
func (rg *ReportGenerator) GenerateReport(b *batch.Batch, cases []*matcher.ExceptionCase, writer io.Writer) error {
	if b == nil {
		return fmt.Errorf("batch cannot be nil")
	}

	cases = rg.limitCases(cases)

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(b, cases, writer)
	case FormatJSON:
		return rg.generateJSONReport(b, cases, writer)
	case FormatCSV:
		return rg.generateCSVReport(cases, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) limitCases(cases []*matcher.ExceptionCase) []*matcher.ExceptionCase {
	if rg.config.MaxExceptions > 0 && len(cases) > rg.config.MaxExceptions {
		return cases[:rg.config.MaxExceptions]
	}
	return cases
}

func (rg *ReportGenerator) generateConsoleReport(b *batch.Batch, cases []*matcher.ExceptionCase, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION BATCH REPORT\n")
	fmt.Fprintf(writer, "Batch ID:  %s\n", b.BatchID)
	fmt.Fprintf(writer, "Status:    %s\n", b.Status)
	fmt.Fprintf(writer, "Window:    %s .. %s\n",
		b.WindowStart.Format(time.RFC3339), b.WindowEnd.Format(time.RFC3339))
	fmt.Fprintf(writer, "Started:   %s\n", b.StartedAt.Format(time.RFC3339))
	if b.EndedAt != nil {
		fmt.Fprintf(writer, "Ended:     %s\n", b.EndedAt.Format(time.RFC3339))
		fmt.Fprintf(writer, "Duration:  %v\n", b.EndedAt.Sub(b.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printCounters(b.Counters, writer)

	if rg.config.IncludeExceptions && len(cases) > 0 {
		fmt.Fprintf(writer, "\n=== EXCEPTION CASES ===\n")
		rg.printExceptions(cases, writer)
	}

	return nil
}

func (rg *ReportGenerator) printCounters(c batch.Counters, writer io.Writer) {
	fmt.Fprintf(writer, "Records Processed:   %d\n", c.TotalProcessed)
	fmt.Fprintf(writer, "Exact Matches:       %d (%.1f%%)\n",
		c.ExactMatches, percentage(c.ExactMatches*2, c.TotalProcessed))
	fmt.Fprintf(writer, "Fuzzy Matches:       %d (%.1f%%)\n",
		c.FuzzyMatches, percentage(c.FuzzyMatches*2, c.TotalProcessed))
	fmt.Fprintf(writer, "Unmatched Bank:      %d\n", c.UnmatchedBank)
	fmt.Fprintf(writer, "Unmatched Scheme:    %d\n", c.UnmatchedScheme)
	fmt.Fprintf(writer, "Exceptions Raised:   %d\n", c.Exceptions)
}

func (rg *ReportGenerator) printExceptions(cases []*matcher.ExceptionCase, writer io.Writer) {
	for _, ec := range cases {
		switch ec.Side {
		case matcher.SideBankOnly:
			fmt.Fprintf(writer, "  [%s] bank txn %s: %s\n", ec.Side, ec.BankTxnID, ec.Reason)
		case matcher.SideSchemeOnly:
			fmt.Fprintf(writer, "  [%s] scheme txn %s: %s\n", ec.Side, ec.SchemeTxnID, ec.Reason)
		case matcher.SideAmbiguousFuzzy:
			fmt.Fprintf(writer, "  [%s] bank txn %s / scheme txn %s: %s (score %.2f)\n",
				ec.Side, ec.BankTxnID, ec.SchemeTxnID, ec.Reason, ec.Score)
		}
	}
}

// jsonReport is the structured report envelope.
type jsonReport struct {
	Batch      *batch.Batch             `json:"batch"`
	Exceptions []*matcher.ExceptionCase `json:"exceptions,omitempty"`
}

func (rg *ReportGenerator) generateJSONReport(b *batch.Batch, cases []*matcher.ExceptionCase, writer io.Writer) error {
	report := jsonReport{Batch: b}
	if rg.config.IncludeExceptions {
		report.Exceptions = cases
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (rg *ReportGenerator) generateCSVReport(cases []*matcher.ExceptionCase, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Batch_ID",
			"Side",
			"Bank_Txn_ID",
			"Scheme_Txn_ID",
			"Reason",
			"Score",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, ec := range cases {
		score := ""
		if ec.Side == matcher.SideAmbiguousFuzzy {
			score = fmt.Sprintf("%.4f", ec.Score)
		}
		record := []string{
			ec.BatchID,
			string(ec.Side),
			ec.BankTxnID,
			ec.SchemeTxnID,
			string(ec.Reason),
			score,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write exception record: %w", err)
		}
	}

	return nil
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
