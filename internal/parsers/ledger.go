package parsers

import (
	"context"
	"io"

	"card-recon-engine/internal/models"
	"card-recon-engine/pkg/errors"
	"card-recon-engine/pkg/logger"
)

// BankLedgerParser reads bank switch CSV exports into BankTransaction records.
type BankLedgerParser struct {
	baseParser
	config *LedgerFileConfig
}

// NewBankLedgerParser creates a parser for the given column layout. A nil
// config selects the standard bank switch layout.
func NewBankLedgerParser(config *LedgerFileConfig) (*BankLedgerParser, error) {
	if config == nil {
		config = DefaultBankLedgerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfiguration, errors.CodeInvalidConfig,
			"invalid bank ledger file configuration")
	}

	return &BankLedgerParser{
		baseParser: baseParser{
			delimiter: config.Delimiter,
			hasHeader: config.HasHeader,
			log:       logger.GetGlobalLogger().WithComponent("bank_ledger_parser"),
		},
		config: config,
	}, nil
}

// ParseFile reads an entire bank switch CSV file. Rejected rows are collected
// in the returned stats; only file-level failures return an error.
func (p *BankLedgerParser) ParseFile(ctx context.Context, path string) ([]*models.BankTransaction, *ParseStats, error) {
	p.log.WithField("file_path", path).Info("Parsing bank ledger file")

	file, reader, err := p.openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	headerMap, err := p.readHeaders(reader, p.config.requiredColumns())
	if err != nil {
		return nil, nil, err
	}

	stats := &ParseStats{}
	var txns []*models.BankTransaction
	line := 0
	if p.hasHeader {
		line = 1
	}

	for {
		if cancelled(ctx) {
			return txns, stats, ctx.Err()
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			stats.addError(line, "record", "", "failed to read CSV record", err)
			continue
		}
		if isEmptyRecord(record) {
			continue
		}

		txn, perr := p.parseRecord(record, headerMap, line)
		if perr != nil {
			stats.addError(perr.Line, perr.Field, perr.Value, perr.Message, perr.Err)
			continue
		}

		txns = append(txns, txn)
		stats.RecordsValid++
	}

	stats.TotalLines = line
	p.logSummary(path, stats)
	return txns, stats, nil
}

func (p *BankLedgerParser) parseRecord(record []string, headerMap map[string]int, line int) (*models.BankTransaction, *ParseError) {
	cfg := p.config

	amountStr := fieldValue(record, headerMap, cfg.AmountColumn)
	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return nil, &ParseError{Line: line, Field: cfg.AmountColumn, Value: amountStr,
			Message: "invalid amount", Err: err}
	}

	tsStr := fieldValue(record, headerMap, cfg.TimestampColumn)
	ts, err := models.ParseTimestamp(tsStr)
	if err != nil {
		return nil, &ParseError{Line: line, Field: cfg.TimestampColumn, Value: tsStr,
			Message: "invalid timestamp", Err: err}
	}

	txn := &models.BankTransaction{
		TxnID:        fieldValue(record, headerMap, cfg.TxnIDColumn),
		CardNumber:   fieldValue(record, headerMap, cfg.CardColumn),
		Amount:       amount,
		Currency:     fieldValue(record, headerMap, cfg.CurrencyColumn),
		TxnTimestamp: ts,
		MerchantID:   fieldValue(record, headerMap, cfg.MerchantColumn),
		TerminalID:   fieldValue(record, headerMap, cfg.TerminalColumn),
		ResponseCode: fieldValue(record, headerMap, cfg.ResponseColumn),
		AuthCode:     fieldValue(record, headerMap, cfg.AuthCodeColumn),
	}

	if chStr := fieldValue(record, headerMap, cfg.ChannelColumn); chStr != "" {
		ch, err := models.ParseChannel(chStr)
		if err != nil {
			return nil, &ParseError{Line: line, Field: cfg.ChannelColumn, Value: chStr,
				Message: "invalid channel", Err: err}
		}
		txn.Channel = ch
	}

	if err := txn.Validate(); err != nil {
		return nil, &ParseError{Line: line, Field: "record", Value: txn.TxnID,
			Message: "record validation failed", Err: err}
	}

	return txn, nil
}

func (p *BankLedgerParser) logSummary(path string, stats *ParseStats) {
	p.log.WithFields(logger.Fields{
		"file_path":     path,
		"total_lines":   stats.TotalLines,
		"records_valid": stats.RecordsValid,
		"error_count":   len(stats.Errors),
	}).Info("Bank ledger parsing completed")

	if stats.HasErrors() {
		p.log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Rows rejected during parsing")
	}
}

// SchemeFileParser reads scheme settlement CSV files into SchemeTransaction
// records.
type SchemeFileParser struct {
	baseParser
	config *LedgerFileConfig
}

// NewSchemeFileParser creates a parser for the given column layout. A nil
// config selects the standard settlement file layout.
func NewSchemeFileParser(config *LedgerFileConfig) (*SchemeFileParser, error) {
	if config == nil {
		config = DefaultSchemeFileConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfiguration, errors.CodeInvalidConfig,
			"invalid scheme settlement file configuration")
	}

	return &SchemeFileParser{
		baseParser: baseParser{
			delimiter: config.Delimiter,
			hasHeader: config.HasHeader,
			log:       logger.GetGlobalLogger().WithComponent("scheme_file_parser"),
		},
		config: config,
	}, nil
}

// ParseFile reads an entire scheme settlement CSV file. Rejected rows are
// collected in the returned stats; only file-level failures return an error.
func (p *SchemeFileParser) ParseFile(ctx context.Context, path string) ([]*models.SchemeTransaction, *ParseStats, error) {
	p.log.WithField("file_path", path).Info("Parsing scheme settlement file")

	file, reader, err := p.openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	headerMap, err := p.readHeaders(reader, p.config.requiredColumns())
	if err != nil {
		return nil, nil, err
	}

	stats := &ParseStats{}
	var txns []*models.SchemeTransaction
	line := 0
	if p.hasHeader {
		line = 1
	}

	for {
		if cancelled(ctx) {
			return txns, stats, ctx.Err()
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			stats.addError(line, "record", "", "failed to read CSV record", err)
			continue
		}
		if isEmptyRecord(record) {
			continue
		}

		txn, perr := p.parseRecord(record, headerMap, line)
		if perr != nil {
			stats.addError(perr.Line, perr.Field, perr.Value, perr.Message, perr.Err)
			continue
		}

		txns = append(txns, txn)
		stats.RecordsValid++
	}

	stats.TotalLines = line
	p.log.WithFields(logger.Fields{
		"file_path":     path,
		"total_lines":   stats.TotalLines,
		"records_valid": stats.RecordsValid,
		"error_count":   len(stats.Errors),
	}).Info("Scheme settlement parsing completed")

	if stats.HasErrors() {
		p.log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Rows rejected during parsing")
	}

	return txns, stats, nil
}

func (p *SchemeFileParser) parseRecord(record []string, headerMap map[string]int, line int) (*models.SchemeTransaction, *ParseError) {
	cfg := p.config

	amountStr := fieldValue(record, headerMap, cfg.AmountColumn)
	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return nil, &ParseError{Line: line, Field: cfg.AmountColumn, Value: amountStr,
			Message: "invalid amount", Err: err}
	}

	tsStr := fieldValue(record, headerMap, cfg.TimestampColumn)
	ts, err := models.ParseTimestamp(tsStr)
	if err != nil {
		return nil, &ParseError{Line: line, Field: cfg.TimestampColumn, Value: tsStr,
			Message: "invalid timestamp", Err: err}
	}

	txn := &models.SchemeTransaction{
		TxnID:        fieldValue(record, headerMap, cfg.TxnIDColumn),
		CardNumber:   fieldValue(record, headerMap, cfg.CardColumn),
		Amount:       amount,
		Currency:     fieldValue(record, headerMap, cfg.CurrencyColumn),
		TxnTimestamp: ts,
		MerchantID:   fieldValue(record, headerMap, cfg.MerchantColumn),
		TerminalID:   fieldValue(record, headerMap, cfg.TerminalColumn),
		ResponseCode: fieldValue(record, headerMap, cfg.ResponseColumn),
		BatchFileID:  fieldValue(record, headerMap, cfg.BatchFileColumn),
		SchemeName:   fieldValue(record, headerMap, cfg.SchemeColumn),
	}

	if err := txn.Validate(); err != nil {
		return nil, &ParseError{Line: line, Field: "record", Value: txn.TxnID,
			Message: "record validation failed", Err: err}
	}

	return txn, nil
}
