// Package models defines the normalized ledger transaction records that the
// reconciliation engine operates on.
//
// Records come from two independent sources that describe the same real-world
// card payment: the bank switch ledger and the card scheme settlement ledger.
// The two variants share a common base shape and are discriminated by
// LedgerSource rather than embedding, so every place that branches on the
// source does so explicitly and exhaustively.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerSource identifies which ledger a transaction record came from.
type LedgerSource string

const (
	// SourceBank marks records from the acquiring bank's switch ledger.
	SourceBank LedgerSource = "BANK"
	// SourceScheme marks records from the card scheme's settlement ledger.
	SourceScheme LedgerSource = "SCHEME"
)

// String returns the string representation of LedgerSource
func (s LedgerSource) String() string {
	return string(s)
}

// IsValid checks if the ledger source is valid
func (s LedgerSource) IsValid() bool {
	return s == SourceBank || s == SourceScheme
}

// Channel represents the transaction channel on the bank side.
type Channel string

const (
	ChannelPOS    Channel = "POS"
	ChannelATM    Channel = "ATM"
	ChannelECOM   Channel = "ECOM"
	ChannelMobile Channel = "MOBILE"
)

// BankTransaction is a normalized transaction record from the bank switch
// ledger. Records are created once by upstream ingestion and are immutable
// thereafter; the engine only ever reads them.
type BankTransaction struct {
	TxnID        string          `json:"txnId"`
	CardNumber   string          `json:"cardNumber"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	TxnTimestamp time.Time       `json:"txnTimestamp"`
	MerchantID   string          `json:"merchantId,omitempty"`
	TerminalID   string          `json:"terminalId,omitempty"`
	ResponseCode string          `json:"responseCode,omitempty"`
	Channel      Channel         `json:"channel,omitempty"`
	AuthCode     string          `json:"authCode,omitempty"`
	RawSource    string          `json:"rawSourceRecord,omitempty"`
}

// SchemeTransaction is a normalized transaction record from the card scheme's
// settlement file.
type SchemeTransaction struct {
	TxnID        string          `json:"txnId"`
	CardNumber   string          `json:"cardNumber"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	TxnTimestamp time.Time       `json:"txnTimestamp"`
	MerchantID   string          `json:"merchantId,omitempty"`
	TerminalID   string          `json:"terminalId,omitempty"`
	ResponseCode string          `json:"responseCode,omitempty"`
	BatchFileID  string          `json:"batchFileId,omitempty"`
	SchemeName   string          `json:"schemeName,omitempty"`
	RawSource    string          `json:"rawSourceRecord,omitempty"`
}

// Validate performs basic validation on the BankTransaction
func (t *BankTransaction) Validate() error {
	return validateCommon(t.TxnID, t.Amount, t.Currency, t.TxnTimestamp)
}

// Validate performs basic validation on the SchemeTransaction
func (t *SchemeTransaction) Validate() error {
	return validateCommon(t.TxnID, t.Amount, t.Currency, t.TxnTimestamp)
}

func validateCommon(txnID string, amount decimal.Decimal, currency string, ts time.Time) error {
	if strings.TrimSpace(txnID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if !amount.IsPositive() {
		return fmt.Errorf("transaction amount must be positive, got %s", amount.String())
	}

	if len(currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO 4217 code, got '%s'", currency)
	}

	if ts.IsZero() {
		return fmt.Errorf("transaction timestamp cannot be zero")
	}

	return nil
}

// String returns a string representation of the BankTransaction
func (t *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{ID: %s, Card: %s, Amount: %s %s, Time: %s}",
		t.TxnID, t.CardNumber, t.Amount.String(), t.Currency, t.TxnTimestamp.Format(time.RFC3339))
}

// String returns a string representation of the SchemeTransaction
func (t *SchemeTransaction) String() string {
	return fmt.Sprintf("SchemeTransaction{ID: %s, Card: %s, Amount: %s %s, Scheme: %s, Time: %s}",
		t.TxnID, t.CardNumber, t.Amount.String(), t.Currency, t.SchemeName, t.TxnTimestamp.Format(time.RFC3339))
}

// MarshalJSON implements custom JSON marshaling for BankTransaction
func (t *BankTransaction) MarshalJSON() ([]byte, error) {
	type Alias BankTransaction
	return json.Marshal(&struct {
		Amount       string `json:"amount"`
		TxnTimestamp string `json:"txnTimestamp"`
		*Alias
	}{
		Amount:       t.Amount.StringFixed(2),
		TxnTimestamp: t.TxnTimestamp.Format(time.RFC3339),
		Alias:        (*Alias)(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for BankTransaction
func (t *BankTransaction) UnmarshalJSON(data []byte) error {
	type Alias BankTransaction
	aux := &struct {
		Amount       string `json:"amount"`
		TxnTimestamp string `json:"txnTimestamp"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	t.TxnTimestamp, err = ParseTimestamp(aux.TxnTimestamp)
	if err != nil {
		return fmt.Errorf("invalid transaction timestamp: %w", err)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling for SchemeTransaction
func (t *SchemeTransaction) MarshalJSON() ([]byte, error) {
	type Alias SchemeTransaction
	return json.Marshal(&struct {
		Amount       string `json:"amount"`
		TxnTimestamp string `json:"txnTimestamp"`
		*Alias
	}{
		Amount:       t.Amount.StringFixed(2),
		TxnTimestamp: t.TxnTimestamp.Format(time.RFC3339),
		Alias:        (*Alias)(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for SchemeTransaction
func (t *SchemeTransaction) UnmarshalJSON(data []byte) error {
	type Alias SchemeTransaction
	aux := &struct {
		Amount       string `json:"amount"`
		TxnTimestamp string `json:"txnTimestamp"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	t.TxnTimestamp, err = ParseTimestamp(aux.TxnTimestamp)
	if err != nil {
		return fmt.Errorf("invalid transaction timestamp: %w", err)
	}

	return nil
}

// Utility functions shared by the CSV loader and store scan paths

// ParseAmount parses a decimal amount from string with validation
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove thousand separators some settlement files carry
	s = strings.ReplaceAll(s, ",", "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTimestamp attempts to parse a timestamp using the formats seen in
// switch exports and settlement files.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006 15:04:05",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp '%s': %w", s, lastErr)
}

// ParseChannel parses and validates a bank transaction channel from string.
// An empty channel is allowed; the field is optional on the bank side.
func ParseChannel(s string) (Channel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	switch s {
	case "":
		return "", nil
	case "POS":
		return ChannelPOS, nil
	case "ATM":
		return ChannelATM, nil
	case "ECOM", "ECOMMERCE":
		return ChannelECOM, nil
	case "MOBILE", "MOB":
		return ChannelMobile, nil
	default:
		return "", fmt.Errorf("invalid channel '%s': must be POS, ATM, ECOM or MOBILE", s)
	}
}

// SameCalendarDay reports whether two timestamps fall on the same UTC
// calendar day. The exact-match phase buckets records by day to absorb
// clock and settlement-cycle skew between the two ledgers.
func SameCalendarDay(a, b time.Time) bool {
	return a.UTC().Format("2006-01-02") == b.UTC().Format("2006-01-02")
}
