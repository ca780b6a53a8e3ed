package batch

import (
	"testing"
	"time"
)

func TestStatusIsTerminal(t *testing.T) {
	if StatusProcessing.IsTerminal() {
		t.Error("PROCESSING must not be terminal")
	}
	if !StatusCompleted.IsTerminal() {
		t.Error("COMPLETED must be terminal")
	}
	if !StatusFailed.IsTerminal() {
		t.Error("FAILED must be terminal")
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{StatusProcessing, StatusCompleted, StatusFailed} {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if Status("RUNNING").IsValid() {
		t.Error("unknown status must not be valid")
	}
}

func TestCountersVerify(t *testing.T) {
	tests := []struct {
		name    string
		c       Counters
		wantErr bool
	}{
		{"zero counters", Counters{}, false},
		{
			"balanced",
			Counters{TotalProcessed: 10, ExactMatches: 3, FuzzyMatches: 1, UnmatchedBank: 1, UnmatchedScheme: 1},
			false,
		},
		{
			"all unmatched",
			Counters{TotalProcessed: 4, UnmatchedBank: 3, UnmatchedScheme: 1},
			false,
		},
		{
			"match counted once instead of twice",
			Counters{TotalProcessed: 10, ExactMatches: 4, UnmatchedBank: 1, UnmatchedScheme: 1},
			true,
		},
		{
			"dropped record",
			Counters{TotalProcessed: 5, ExactMatches: 2},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Verify()
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBatchValidate(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	ended := now.Add(time.Minute)

	valid := Batch{
		BatchID:     "batch-1",
		Status:      StatusProcessing,
		WindowStart: now.AddDate(0, 0, -7),
		WindowEnd:   now,
		StartedAt:   now,
		CreatedBy:   "SYSTEM",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid batch failed validation: %v", err)
	}

	missingID := valid
	missingID.BatchID = ""
	if err := missingID.Validate(); err == nil {
		t.Error("expected error for missing batch ID")
	}

	badStatus := valid
	badStatus.Status = "RUNNING"
	if err := badStatus.Validate(); err == nil {
		t.Error("expected error for unknown status")
	}

	terminalNoEnd := valid
	terminalNoEnd.Status = StatusCompleted
	if err := terminalNoEnd.Validate(); err == nil {
		t.Error("expected error for terminal batch without end timestamp")
	}

	terminalWithEnd := terminalNoEnd
	terminalWithEnd.EndedAt = &ended
	if err := terminalWithEnd.Validate(); err != nil {
		t.Errorf("terminal batch with end timestamp failed validation: %v", err)
	}
}
