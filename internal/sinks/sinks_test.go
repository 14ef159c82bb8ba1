package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/segmentio/kafka-go"

	"relaybot/internal/notifier"
	"relaybot/internal/relay"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const id = "0x1234567890abcdef1234567890abcdef12345678"

func note(o relay.Outcome, err error) relay.Notification {
	r := relay.Result{EventID: "ev-1", Identifier: id, Channel: "alpha", Outcome: o, Err: err, At: time.Unix(1700000000, 0), Took: 42 * time.Millisecond}
	return relay.Notification{Result: r, Text: relay.Render(r)}
}

type queue struct{ got []notifier.Notification }

func (q *queue) Notify(_ context.Context, n notifier.Notification) error {
	q.got = append(q.got, n)
	return nil
}

func TestChatSinkSkipsDuplicatesByDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		duplicates bool
		outcome    relay.Outcome
		want       int
	}{
		{name: "success", outcome: relay.OutcomeSuccess, want: 1},
		{name: "failure", outcome: relay.OutcomeFailure, want: 1},
		{name: "duplicate hidden", outcome: relay.OutcomeSkippedDuplicate, want: 0},
		{name: "duplicate shown", duplicates: true, outcome: relay.OutcomeSkippedDuplicate, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &queue{}
			s := NewChatSink(q, kit.ChatTarget{ChatID: -100}, tt.duplicates)
			if err := s.Deliver(context.Background(), note(tt.outcome, errors.New("x"))); err != nil {
				t.Fatalf("Deliver: %v", err)
			}
			if len(q.got) != tt.want {
				t.Fatalf("enqueued %d, want %d", len(q.got), tt.want)
			}
			if tt.want == 1 && (q.got[0].Target.ChatID != -100 || q.got[0].Kind != "relay."+tt.outcome.String()) {
				t.Fatalf("notification = %+v", q.got[0])
			}
		})
	}
}

func TestChatSinkTargetSwap(t *testing.T) {
	t.Parallel()
	q := &queue{}
	s := NewChatSink(q, kit.ChatTarget{}, false)
	ctx := context.Background()
	if err := s.Deliver(ctx, note(relay.OutcomeSuccess, nil)); err != nil || len(q.got) != 0 {
		t.Fatalf("zero target must be a no-op: err=%v got=%d", err, len(q.got))
	}
	s.SetTarget(kit.ChatTarget{Username: "ops"}, true)
	if err := s.Deliver(ctx, note(relay.OutcomeSkippedDuplicate, nil)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(q.got) != 1 || q.got[0].Target.Username != "ops" {
		t.Fatalf("got %+v", q.got)
	}
}

func TestLogSinkWritesStructuredLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := NewLogSink(logx.NewWriter(&buf, "debug"))
	if err := s.Deliver(context.Background(), note(relay.OutcomeFailure, errors.New("timeout"))); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if line["level"] != "warn" || line["id"] != id || line["outcome"] != "failure" {
		t.Fatalf("line = %v", line)
	}
}

func TestJournalSinkFields(t *testing.T) {
	t.Parallel()
	var (
		gotMsg  string
		gotPri  journal.Priority
		gotVars map[string]string
	)
	s := &JournalSink{send: func(m string, p journal.Priority, v map[string]string) error {
		gotMsg, gotPri, gotVars = m, p, v
		return nil
	}}
	if err := s.Deliver(context.Background(), note(relay.OutcomeSuccess, nil)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !strings.HasPrefix(gotMsg, "✅ Relayed") || gotPri != journal.PriNotice || gotVars["RELAY_ID"] != id {
		t.Fatalf("sent %q %v %v", gotMsg, gotPri, gotVars)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSinkPublishesKeyedJSON(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	s := &KafkaSink{w: w, topic: "relay.outcomes"}
	if err := s.Deliver(context.Background(), note(relay.OutcomeFailure, errors.New("blocked"))); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != id {
		t.Fatalf("messages = %+v", w.msgs)
	}
	var m OutcomeMessage
	if err := json.Unmarshal(w.msgs[0].Value, &m); err != nil {
		t.Fatal(err)
	}
	if m.Outcome != "failure" || m.Error != "blocked" || m.TookMS != 42 || m.Channel != "alpha" {
		t.Fatalf("message = %+v", m)
	}

	w.err = errors.New("no brokers")
	if err := s.Deliver(context.Background(), note(relay.OutcomeSuccess, nil)); err == nil || !strings.Contains(err.Error(), "relay.outcomes") {
		t.Fatalf("Deliver err = %v", err)
	}
}
