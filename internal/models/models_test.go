package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validBankTxn() *BankTransaction {
	return &BankTransaction{
		TxnID:        "B1",
		CardNumber:   "411111******1111",
		Amount:       decimal.NewFromFloat(100.50),
		Currency:     "USD",
		TxnTimestamp: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		MerchantID:   "M-001",
		Channel:      ChannelPOS,
	}
}

func validSchemeTxn() *SchemeTransaction {
	return &SchemeTransaction{
		TxnID:        "S1",
		CardNumber:   "411111******1111",
		Amount:       decimal.NewFromFloat(100.50),
		Currency:     "USD",
		TxnTimestamp: time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC),
		SchemeName:   "VISA",
		BatchFileID:  "VISA-20240315-001",
	}
}

func TestBankTransactionValidate(t *testing.T) {
	if err := validBankTxn().Validate(); err != nil {
		t.Errorf("valid transaction failed validation: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*BankTransaction)
	}{
		{"empty ID", func(tx *BankTransaction) { tx.TxnID = "" }},
		{"zero amount", func(tx *BankTransaction) { tx.Amount = decimal.Zero }},
		{"negative amount", func(tx *BankTransaction) { tx.Amount = decimal.NewFromInt(-5) }},
		{"bad currency", func(tx *BankTransaction) { tx.Currency = "US" }},
		{"zero timestamp", func(tx *BankTransaction) { tx.TxnTimestamp = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validBankTxn()
			tt.modify(tx)
			if err := tx.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSchemeTransactionValidate(t *testing.T) {
	if err := validSchemeTxn().Validate(); err != nil {
		t.Errorf("valid transaction failed validation: %v", err)
	}

	tx := validSchemeTxn()
	tx.Currency = "EURO"
	if err := tx.Validate(); err == nil {
		t.Error("expected validation error for 4-letter currency")
	}
}

func TestBankTransactionJSONRoundTrip(t *testing.T) {
	tx := validBankTxn()

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded BankTransaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.TxnID != tx.TxnID {
		t.Errorf("ID changed: %s != %s", decoded.TxnID, tx.TxnID)
	}
	if !decoded.Amount.Equal(tx.Amount) {
		t.Errorf("amount changed: %s != %s", decoded.Amount, tx.Amount)
	}
	if !decoded.TxnTimestamp.Equal(tx.TxnTimestamp) {
		t.Errorf("timestamp changed: %s != %s", decoded.TxnTimestamp, tx.TxnTimestamp)
	}
	if decoded.Channel != tx.Channel {
		t.Errorf("channel changed: %s != %s", decoded.Channel, tx.Channel)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"100.50", "100.5", false},
		{" 99.99 ", "99.99", false},
		{"1,250.00", "1250", false},
		{"0.01", "0.01", false},
		{"", "", true},
		{"abc", "", true},
		{"12.34.56", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2024-03-15T10:30:00Z", false},
		{"2024-03-15T10:30:00", false},
		{"2024-03-15 10:30:00", false},
		{"2024-03-15", false},
		{"15/03/2024 10:30:00", false},
		{"", true},
		{"not a timestamp", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		input   string
		want    Channel
		wantErr bool
	}{
		{"POS", ChannelPOS, false},
		{"pos", ChannelPOS, false},
		{"ATM", ChannelATM, false},
		{"ecommerce", ChannelECOM, false},
		{"MOB", ChannelMobile, false},
		{"", "", false},
		{"WEB", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseChannel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseChannel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseChannel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestSameCalendarDay(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want bool
	}{
		{
			"same day different hours",
			time.Date(2024, 3, 15, 0, 1, 0, 0, time.UTC),
			time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC),
			true,
		},
		{
			"across midnight",
			time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC),
			time.Date(2024, 3, 16, 0, 1, 0, 0, time.UTC),
			false,
		},
		{
			"same instant different zones",
			time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 16, 1, 0, 0, 0, time.FixedZone("CET", 2*3600)),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameCalendarDay(tt.a, tt.b); got != tt.want {
				t.Errorf("SameCalendarDay = %v, want %v", got, tt.want)
			}
		})
	}
}
