package relay

import (
	"sync"
	"time"
)

// Status is a point-in-time view of the relay counters.
type Status struct {
	StartedAt      time.Time `json:"started_at"`
	Processed      uint64    `json:"processed"`
	Failed         uint64    `json:"failed"`
	Skipped        uint64    `json:"skipped"`
	LastIdentifier string    `json:"last_identifier,omitempty"`
	LastChannel    string    `json:"last_channel,omitempty"`
	LastOutcome    string    `json:"last_outcome,omitempty"`
	LastAt         time.Time `json:"last_at,omitempty"`
}

func (s Status) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt).Truncate(time.Second)
}

// Tracker owns the process-wide Status. Writers are the event loop only;
// readers (ops HTTP, /status, metrics) use Snapshot.
type Tracker struct {
	mu sync.Mutex
	st Status
}

func NewTracker(now time.Time) *Tracker {
	return &Tracker{st: Status{StartedAt: now}}
}

// Apply folds a relay result into the status. Duplicates only bump the skip
// counter and the last outcome.
func (t *Tracker) Apply(r Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.LastOutcome = r.Outcome.String()
	switch r.Outcome {
	case OutcomeSkippedDuplicate:
		t.st.Skipped++
		return
	case OutcomeSuccess:
		t.st.Processed++
	case OutcomeFailure:
		t.st.Failed++
	}
	t.st.LastIdentifier = r.Identifier
	t.st.LastChannel = r.Channel
	t.st.LastAt = r.At
}

func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}
