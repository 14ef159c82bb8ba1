package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"relaybot/internal/eventbus"
	"relaybot/internal/relay"
	logx "relaybot/pkg/logx"
)

func TestCountsOutcomesAndBusEvents(t *testing.T) {
	t.Parallel()
	m := New(relay.NewTracker(time.Now()), func() int { return 3 })

	for _, o := range []relay.Outcome{relay.OutcomeSuccess, relay.OutcomeSuccess, relay.OutcomeFailure, relay.OutcomeSkippedDuplicate} {
		if err := m.Deliver(context.Background(), relay.Notification{Result: relay.Result{Outcome: o, Took: 10 * time.Millisecond}}); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	// outcomes come from the fanout only; a bus copy must not double count
	m.Observe(eventbus.Event{Type: eventbus.TypeRelayOutcome, Data: relay.Result{Outcome: relay.OutcomeSuccess}})
	m.Observe(eventbus.Event{Type: eventbus.TypeEventDropped, Data: relay.DropNoMatch})
	m.Observe(eventbus.Event{Type: eventbus.TypeNotifyFailed})
	m.Observe(eventbus.Event{Type: eventbus.TypeConfigReloaded})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"success", testutil.ToFloat64(m.outcomes.WithLabelValues("success")), 2},
		{"failure", testutil.ToFloat64(m.outcomes.WithLabelValues("failure")), 1},
		{"duplicate", testutil.ToFloat64(m.outcomes.WithLabelValues("skipped_duplicate")), 1},
		{"no match", testutil.ToFloat64(m.dropped.WithLabelValues(relay.DropNoMatch)), 1},
		{"notify failed", testutil.ToFloat64(m.notifications.WithLabelValues("failed")), 1},
		{"reloads", testutil.ToFloat64(m.reloads), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestHandlerExposesStatus(t *testing.T) {
	t.Parallel()
	tr := relay.NewTracker(time.Now().Add(-time.Minute))
	tr.Apply(relay.Result{Identifier: "0x1", Channel: "alpha", Outcome: relay.OutcomeSuccess, At: time.Now()})
	m := New(tr, func() int { return 7 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"relaybot_processed_identifiers 7",
		"relaybot_uptime_seconds",
		"relaybot_last_relay_timestamp_seconds",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsInFanoutSeesEveryResult(t *testing.T) {
	t.Parallel()
	m := New(relay.NewTracker(time.Now()), nil)
	f := relay.NewFanout(logx.Nop(), time.Second, m)
	for i := 0; i < 50; i++ {
		f.Emit(context.Background(), relay.Result{Identifier: "0x1", Outcome: relay.OutcomeSuccess, At: time.Now()})
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("success")); got != 50 {
		t.Fatalf("success = %v, want 50", got)
	}
}
