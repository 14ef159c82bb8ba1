package sinks

import (
	"context"
	"sync"

	"relaybot/internal/notifier"
	"relaybot/internal/relay"
	kit "relaybot/internal/transport"
)

// Enqueuer is the part of notifier.Service the chat sink needs.
type Enqueuer interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// ChatSink forwards outcomes to the notify chat through the notifier queue.
// Duplicate skips are only sent when duplicates is set. A zero target
// makes the sink a no-op until SetTarget gives it one.
type ChatSink struct {
	q Enqueuer

	mu         sync.RWMutex
	target     kit.ChatTarget
	duplicates bool
}

func NewChatSink(q Enqueuer, target kit.ChatTarget, duplicates bool) *ChatSink {
	return &ChatSink{q: q, target: target, duplicates: duplicates}
}

func (s *ChatSink) Name() string { return "chat" }

// SetTarget swaps the notify chat and the duplicates flag on config reload.
func (s *ChatSink) SetTarget(target kit.ChatTarget, duplicates bool) {
	s.mu.Lock()
	s.target = target
	s.duplicates = duplicates
	s.mu.Unlock()
}

func (s *ChatSink) Deliver(ctx context.Context, n relay.Notification) error {
	s.mu.RLock()
	target, duplicates := s.target, s.duplicates
	s.mu.RUnlock()

	if target.IsZero() {
		return nil
	}
	if n.Result.Outcome == relay.OutcomeSkippedDuplicate && !duplicates {
		return nil
	}
	return s.q.Notify(ctx, notifier.Notification{
		Kind:    "relay." + n.Result.Outcome.String(),
		Target:  target,
		Text:    n.Text,
		Options: &kit.SendOptions{DisablePreview: true},
	})
}
