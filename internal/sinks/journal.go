package sinks

import (
	"context"

	"github.com/coreos/go-systemd/v22/journal"

	"relaybot/internal/relay"
)

// JournalSink sends outcomes to the local systemd journal with searchable
// RELAY_* fields.
type JournalSink struct {
	send func(message string, priority journal.Priority, vars map[string]string) error
}

// NewJournalSink returns nil when journald is not reachable.
func NewJournalSink() *JournalSink {
	if !journal.Enabled() {
		return nil
	}
	return &JournalSink{send: journal.Send}
}

func (s *JournalSink) Name() string { return "journal" }

func (s *JournalSink) Deliver(_ context.Context, n relay.Notification) error {
	r := n.Result
	vars := map[string]string{
		"RELAY_ID":       r.Identifier,
		"RELAY_CHANNEL":  r.Channel,
		"RELAY_OUTCOME":  r.Outcome.String(),
		"RELAY_EVENT_ID": r.EventID,
	}
	return s.send(n.Text, priorityFor(r.Outcome), vars)
}

func priorityFor(o relay.Outcome) journal.Priority {
	switch o {
	case relay.OutcomeFailure:
		return journal.PriErr
	case relay.OutcomeSuccess:
		return journal.PriNotice
	default:
		return journal.PriInfo
	}
}
