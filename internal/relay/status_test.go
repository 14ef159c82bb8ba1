package relay

import (
	"errors"
	"testing"
	"time"
)

func TestTrackerApply(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start)
	at := start.Add(time.Minute)

	tr.Apply(Result{Identifier: addrA, Channel: "alpha", Outcome: OutcomeSuccess, At: at})
	tr.Apply(Result{Identifier: addrB, Channel: "beta", Outcome: OutcomeFailure, Err: errors.New("x"), At: at.Add(time.Second)})
	tr.Apply(Result{Identifier: addrA, Channel: "gamma", Outcome: OutcomeSkippedDuplicate, At: at.Add(2 * time.Second)})

	st := tr.Snapshot()
	if st.Processed != 1 || st.Failed != 1 || st.Skipped != 1 {
		t.Fatalf("counters = %+v", st)
	}
	// duplicates do not move the last-* fields except the outcome
	if st.LastIdentifier != addrB || st.LastChannel != "beta" || !st.LastAt.Equal(at.Add(time.Second)) {
		t.Fatalf("last = %q/%q/%v", st.LastIdentifier, st.LastChannel, st.LastAt)
	}
	if st.LastOutcome != "skipped_duplicate" {
		t.Fatalf("LastOutcome = %q", st.LastOutcome)
	}
	if got := st.Uptime(start.Add(90*time.Second + 300*time.Millisecond)); got != 90*time.Second {
		t.Fatalf("Uptime = %v", got)
	}
}
