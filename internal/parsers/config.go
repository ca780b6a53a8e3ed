package parsers

import (
	"fmt"
	"strings"
)

// LedgerFileConfig maps the columns of a source CSV file onto the normalized
// transaction fields. Acquirers and schemes name their columns differently;
// a config captures one such layout.
type LedgerFileConfig struct {
	Name            string `json:"name"`
	TxnIDColumn     string `json:"txn_id_column"`
	CardColumn      string `json:"card_column"`
	AmountColumn    string `json:"amount_column"`
	CurrencyColumn  string `json:"currency_column"`
	TimestampColumn string `json:"timestamp_column"`
	MerchantColumn  string `json:"merchant_column,omitempty"`
	TerminalColumn  string `json:"terminal_column,omitempty"`
	ResponseColumn  string `json:"response_column,omitempty"`
	ChannelColumn   string `json:"channel_column,omitempty"`
	AuthCodeColumn  string `json:"auth_code_column,omitempty"`
	BatchFileColumn string `json:"batch_file_column,omitempty"`
	SchemeColumn    string `json:"scheme_column,omitempty"`
	HasHeader       bool   `json:"has_header"`
	Delimiter       rune   `json:"delimiter"`
}

// Validate checks that the mandatory column mappings are present.
func (c *LedgerFileConfig) Validate() error {
	required := map[string]string{
		"txn_id_column":    c.TxnIDColumn,
		"card_column":      c.CardColumn,
		"amount_column":    c.AmountColumn,
		"currency_column":  c.CurrencyColumn,
		"timestamp_column": c.TimestampColumn,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	return nil
}

// requiredColumns returns the columns every row must carry.
func (c *LedgerFileConfig) requiredColumns() []string {
	return []string{
		c.TxnIDColumn,
		c.CardColumn,
		c.AmountColumn,
		c.CurrencyColumn,
		c.TimestampColumn,
	}
}

// DefaultBankLedgerConfig matches the standard bank switch export layout.
func DefaultBankLedgerConfig() *LedgerFileConfig {
	return &LedgerFileConfig{
		Name:            "bank_switch",
		TxnIDColumn:     "txn_id",
		CardColumn:      "card_number",
		AmountColumn:    "amount",
		CurrencyColumn:  "currency",
		TimestampColumn: "txn_timestamp",
		MerchantColumn:  "merchant_id",
		TerminalColumn:  "terminal_id",
		ResponseColumn:  "response_code",
		ChannelColumn:   "channel",
		AuthCodeColumn:  "auth_code",
		HasHeader:       true,
		Delimiter:       ',',
	}
}

// DefaultSchemeFileConfig matches the standard scheme settlement file layout.
func DefaultSchemeFileConfig() *LedgerFileConfig {
	return &LedgerFileConfig{
		Name:            "scheme_settlement",
		TxnIDColumn:     "txn_id",
		CardColumn:      "card_number",
		AmountColumn:    "amount",
		CurrencyColumn:  "currency",
		TimestampColumn: "txn_timestamp",
		MerchantColumn:  "merchant_id",
		TerminalColumn:  "terminal_id",
		ResponseColumn:  "response_code",
		BatchFileColumn: "batch_file_id",
		SchemeColumn:    "scheme_name",
		HasHeader:       true,
		Delimiter:       ',',
	}
}
