// Package parsers reads bank switch and scheme settlement CSV files into
// normalized ledger records.
//
// Column names differ between acquirers and schemes, so each parser takes a
// column-mapping configuration. Rows that fail to parse or validate are
// collected as per-line errors; a bad row never aborts the whole file.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"card-recon-engine/pkg/errors"
	"card-recon-engine/pkg/logger"
)

// ParseError describes a failure at a specific line of a CSV file.
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseStats summarizes one file ingestion.
type ParseStats struct {
	TotalLines   int
	RecordsValid int
	Inserted     int
	Duplicates   int
	Errors       []*ParseError
}

// HasErrors reports whether any rows were rejected.
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

func (ps *ParseStats) addError(line int, field, value, message string, err error) {
	ps.Errors = append(ps.Errors, &ParseError{
		Line:    line,
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	})
}

// String returns a human-readable ingestion summary.
func (ps *ParseStats) String() string {
	return fmt.Sprintf("parsed %d lines, %d valid records, %d inserted, %d duplicates, %d errors",
		ps.TotalLines, ps.RecordsValid, ps.Inserted, ps.Duplicates, len(ps.Errors))
}

// SampleErrors returns up to maxSamples rejected-row messages for logging.
func (ps *ParseStats) SampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// baseParser holds the CSV mechanics shared by both ledger parsers.
type baseParser struct {
	delimiter rune
	hasHeader bool
	log       logger.Logger
}

// openFile opens a CSV file with the parser's reader settings.
func (bp *baseParser) openFile(path string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		bp.log.WithError(err).WithField("file_path", path).Error("Failed to open CSV file")
		return nil, nil, errors.DataAccessError(errors.CodeStoreUnavailable, "open file", err)
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	return file, reader, nil
}

// readHeaders consumes the header row and maps the required column names to
// their indices.
func (bp *baseParser) readHeaders(reader *csv.Reader, required []string) (map[string]int, error) {
	if !bp.hasHeader {
		// Positional mapping in declaration order when the file has no header.
		m := make(map[string]int, len(required))
		for i, name := range required {
			m[name] = i
		}
		return m, nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.ValidationError(errors.CodeMissingField, "file_content",
				fmt.Errorf("file is empty"))
		}
		return nil, errors.ValidationError(errors.CodeInvalidRecord, "headers", err)
	}

	m := make(map[string]int, len(headers))
	for i, h := range headers {
		m[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var missing []string
	for _, name := range required {
		if _, ok := m[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		bp.log.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": headers,
		}).Error("Required headers are missing")
		return nil, errors.ValidationError(errors.CodeMissingField, "headers",
			fmt.Errorf("missing required columns: %s", strings.Join(missing, ", ")))
	}

	return m, nil
}

// fieldValue extracts a named column from a record, empty string when the
// column is optional and absent.
func fieldValue(record []string, headerMap map[string]int, name string) string {
	idx, ok := headerMap[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
