package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type sentMessage struct {
	to   kit.ChatTarget
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]error
}

func (s *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[text]; err != nil {
		return kit.MessageRef{}, err
	}
	s.sent = append(s.sent, sentMessage{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(s.sent)}, nil
}

func (s *fakeSender) setFailure(text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = map[string]error{}
	}
	if err == nil {
		delete(s.fail, text)
		return
	}
	s.fail[text] = err
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.text
	}
	return out
}

type memJournal struct {
	mu        sync.Mutex
	ids       []string
	appendErr error
	closed    bool
}

func (j *memJournal) Load(context.Context) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.ids...), nil
}

func (j *memJournal) Append(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.appendErr != nil {
		return j.appendErr
	}
	j.ids = append(j.ids, id)
	return nil
}

func (j *memJournal) Close() error {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	return nil
}

func (j *memJournal) lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.ids...)
}

type recordingSink struct {
	name string
	err  error

	mu  sync.Mutex
	got []Notification
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, n Notification) error {
	s.mu.Lock()
	s.got = append(s.got, n)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.got...)
}

var errNetwork = errors.New("network unreachable")

const (
	addrA = "0x1234567890abcdef1234567890abcdef12345678"
	addrB = "0xABCDEFabcdef0123456789012345678901234567"
)

type harness struct {
	loop    *Loop
	sender  *fakeSender
	journal *memJournal
	store   *DedupStore
	sink    *recordingSink
	status  *Tracker
}

func newHarness(t *testing.T, channels []string, preloaded ...string) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		sender:  &fakeSender{},
		journal: &memJournal{ids: preloaded},
		sink:    &recordingSink{name: "rec"},
		status:  NewTracker(time.Unix(0, 0)),
	}
	filter, err := NewChannelFilter(channels)
	if err != nil {
		t.Fatalf("NewChannelFilter: %v", err)
	}
	extractor, err := NewExtractor("")
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	h.store, err = OpenDedupStore(ctx, h.journal, logx.Nop())
	if err != nil {
		t.Fatalf("OpenDedupStore: %v", err)
	}
	h.loop, err = NewLoop(Deps{
		Filter:     filter,
		Extractor:  extractor,
		Store:      h.store,
		Dispatcher: NewDispatcher(h.sender, kit.ChatTarget{Username: "autobuy_bot"}),
		Fanout:     NewFanout(logx.Nop(), time.Second, h.sink),
		Status:     h.status,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return h
}

func post(origin, text string) kit.InboundEvent {
	return kit.InboundEvent{Origin: origin, HasOrigin: origin != "", ChatID: -100, MessageID: 1, Text: text, At: time.Now()}
}
