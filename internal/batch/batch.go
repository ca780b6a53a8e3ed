// Package batch defines the reconciliation batch control record, its
// lifecycle states, and the resolution of the batch time window from a
// configuration snapshot.
package batch

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a reconciliation batch.
//
// A batch is written with PROCESSING as its first durable state: creation and
// start are a single persist, so there is no externally observable gap where
// a batch exists but has not started. COMPLETED and FAILED are terminal.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	return s == StatusProcessing || s == StatusCompleted || s == StatusFailed
}

// Counters are the auditable result figures of a batch run. They are written
// exactly once, atomically, at the terminal transition; a failed batch keeps
// them at zero so partial counts never reach an audit trail.
type Counters struct {
	TotalProcessed  int `json:"totalProcessed"`
	ExactMatches    int `json:"exactMatches"`
	FuzzyMatches    int `json:"fuzzyMatches"`
	UnmatchedBank   int `json:"unmatchedBank"`
	UnmatchedScheme int `json:"unmatchedScheme"`
	Exceptions      int `json:"exceptions"`
}

// Verify checks the counter balance: every record is counted exactly once
// across matches and remainders.
func (c Counters) Verify() error {
	covered := c.ExactMatches*2 + c.FuzzyMatches*2 + c.UnmatchedBank + c.UnmatchedScheme
	if covered != c.TotalProcessed {
		return fmt.Errorf("counters do not balance: matches and remainders cover %d of %d records",
			covered, c.TotalProcessed)
	}
	return nil
}

// Batch is the control record for one reconciliation run. The orchestrator
// exclusively owns its lifecycle and is the only writer of status and
// counters.
type Batch struct {
	BatchID        string     `json:"batchId"`
	Status         Status     `json:"status"`
	WindowStart    time.Time  `json:"windowStart"`
	WindowEnd      time.Time  `json:"windowEnd"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	CreatedBy      string     `json:"createdBy"`
	ConfigSnapshot string     `json:"configSnapshot"`
	Counters       Counters   `json:"counters"`
}

// Validate performs basic validation on the batch record
func (b *Batch) Validate() error {
	if b.BatchID == "" {
		return fmt.Errorf("batch ID cannot be empty")
	}

	if !b.Status.IsValid() {
		return fmt.Errorf("invalid batch status: %s", b.Status)
	}

	if b.StartedAt.IsZero() {
		return fmt.Errorf("batch start timestamp cannot be zero")
	}

	if b.Status.IsTerminal() && b.EndedAt == nil {
		return fmt.Errorf("terminal batch must carry an end timestamp")
	}

	return nil
}

// String returns a string representation of the batch
func (b *Batch) String() string {
	return fmt.Sprintf("Batch{ID: %s, Status: %s, Window: [%s, %s), StartedAt: %s}",
		b.BatchID, b.Status,
		b.WindowStart.Format(time.RFC3339), b.WindowEnd.Format(time.RFC3339),
		b.StartedAt.Format(time.RFC3339))
}
