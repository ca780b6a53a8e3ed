package batch

import (
	"encoding/json"
	"time"

	"card-recon-engine/pkg/logger"
)

// windowTimeLayout is the local-datetime format carried in config snapshots.
const windowTimeLayout = "2006-01-02T15:04:05"

// DefaultWindowDays is the trailing window applied when the snapshot carries
// no usable batch window.
const DefaultWindowDays = 30

// Window is the half-open [Start, End) time range a batch covers.
type Window struct {
	Start time.Time `json:"windowStart"`
	End   time.Time `json:"windowEnd"`
}

// Contains reports whether ts falls inside the half-open interval: inclusive
// of Start, exclusive of End.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// WindowResolver derives the batch window from an opaque configuration
// snapshot.
//
// Resolution is deliberately fail-open: a missing, malformed or inconsistent
// snapshot yields the default trailing window instead of an error, because a
// batch must always be able to start and auditors need every batch to carry
// a window. Do not tighten this into a validation failure.
type WindowResolver struct {
	now func() time.Time
	log logger.Logger
}

// NewWindowResolver creates a resolver using the wall clock.
func NewWindowResolver() *WindowResolver {
	return NewWindowResolverWithClock(time.Now)
}

// NewWindowResolverWithClock creates a resolver with an injected clock, used
// by tests to pin "now".
func NewWindowResolverWithClock(now func() time.Time) *WindowResolver {
	return &WindowResolver{
		now: now,
		log: logger.GetGlobalLogger().WithComponent("window_resolver"),
	}
}

// snapshotEnvelope mirrors the expected snapshot shape:
//
//	{"batchWindow": {"windowStart": "2024-01-01T00:00:00", "windowEnd": "2024-01-31T23:59:59"}}
type snapshotEnvelope struct {
	BatchWindow *struct {
		WindowStart string `json:"windowStart"`
		WindowEnd   string `json:"windowEnd"`
	} `json:"batchWindow"`
}

// Resolve returns the window for a batch given its configuration snapshot.
// Any parse or consistency failure falls back to the default window of
// [now - 30 days, now).
func (r *WindowResolver) Resolve(configSnapshot string) Window {
	w, err := r.parse(configSnapshot)
	if err != nil {
		r.log.WithError(err).Debug("Config snapshot has no usable window, using default")
		return r.DefaultWindow()
	}
	return w
}

func (r *WindowResolver) parse(configSnapshot string) (Window, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal([]byte(configSnapshot), &env); err != nil {
		return Window{}, err
	}

	if env.BatchWindow == nil {
		return Window{}, errMissingWindow
	}

	start, err := time.Parse(windowTimeLayout, env.BatchWindow.WindowStart)
	if err != nil {
		return Window{}, err
	}

	end, err := time.Parse(windowTimeLayout, env.BatchWindow.WindowEnd)
	if err != nil {
		return Window{}, err
	}

	if !start.Before(end) {
		return Window{}, errInvertedWindow
	}

	return Window{Start: start, End: end}, nil
}

// DefaultWindow returns the trailing default window ending now.
func (r *WindowResolver) DefaultWindow() Window {
	now := r.now()
	return Window{
		Start: now.AddDate(0, 0, -DefaultWindowDays),
		End:   now,
	}
}

var (
	errMissingWindow  = jsonError("missing 'batchWindow' in config snapshot")
	errInvertedWindow = jsonError("windowStart must be before windowEnd")
)

type jsonError string

func (e jsonError) Error() string { return string(e) }
