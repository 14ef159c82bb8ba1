package adapter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

func TestEventFromMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		m    *tele.Message
		want *kit.InboundEvent
	}{
		{
			name: "channel post",
			m:    &tele.Message{ID: 7, Text: "CA 0xabc", Chat: &tele.Chat{ID: -1001, Username: "alpha"}},
			want: &kit.InboundEvent{Origin: "alpha", HasOrigin: true, ChatID: -1001, MessageID: 7, Text: "CA 0xabc"},
		},
		{
			name: "caption",
			m:    &tele.Message{ID: 8, Caption: "pic 0xdef", Chat: &tele.Chat{ID: -1002, Username: "beta"}},
			want: &kit.InboundEvent{Origin: "beta", HasOrigin: true, ChatID: -1002, MessageID: 8, Text: "pic 0xdef"},
		},
		{
			name: "private channel",
			m:    &tele.Message{ID: 9, Text: "x", Chat: &tele.Chat{ID: -1003}},
			want: &kit.InboundEvent{ChatID: -1003, MessageID: 9, Text: "x"},
		},
		{name: "empty", m: &tele.Message{Chat: &tele.Chat{ID: 1}}},
		{name: "no chat", m: &tele.Message{Text: "x"}},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventFromMessage(tt.m)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("got nil")
			}
			got.At = tt.want.At
			if *got != *tt.want {
				t.Fatalf("got %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestCommandFromMessage(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		Text:     "/Status@relay_bot verbose",
		Chat:     &tele.Chat{ID: 42},
		Sender:   &tele.User{ID: 1001},
		ThreadID: 3,
	}
	got := commandFromMessage(m)
	if got == nil {
		t.Fatal("nil command")
	}
	if got.Name != "status" || !slices.Equal(got.Args, []string{"verbose"}) || got.FromID != 1001 {
		t.Fatalf("command = %+v", got)
	}
	if got.Chat != (kit.ChatTarget{ChatID: 42, ThreadID: 3}) {
		t.Fatalf("chat = %+v", got.Chat)
	}
	if commandFromMessage(&tele.Message{Text: "hello", Chat: &tele.Chat{ID: 1}}) != nil {
		t.Fatal("plain text is not a command")
	}
}

func TestRecipientFor(t *testing.T) {
	t.Parallel()
	if got := recipientFor(kit.ChatTarget{Username: "@buyer_bot"}).Recipient(); got != "@buyer_bot" {
		t.Fatalf("username recipient = %q", got)
	}
	if got := recipientFor(kit.ChatTarget{ChatID: -100123}).Recipient(); got != "-100123" {
		t.Fatalf("id recipient = %q", got)
	}
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	if got := splitTelegramText("short", 10, ""); !slices.Equal(got, []string{"short"}) {
		t.Fatalf("short = %v", got)
	}

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitTelegramText(long, 10, "")
	if !slices.Equal(got, []string{strings.Repeat("a", 8), strings.Repeat("b", 8)}) {
		t.Fatalf("newline split = %q", got)
	}

	html := "abcdef<b>bold</b>"
	for _, chunk := range splitTelegramText(html, 8, "HTML") {
		if strings.Count(chunk, "<") != strings.Count(chunk, ">") {
			t.Fatalf("chunk %q splits a tag", chunk)
		}
	}
}

func TestUnrecoverable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unauthorized sentinel", err: tele.ErrUnauthorized, want: true},
		{name: "wrapped unauthorized", err: fmt.Errorf("getUpdates: %w", tele.ErrUnauthorized), want: true},
		{name: "conflict error value", err: tele.NewError(409, "Conflict: terminated by other getUpdates request"), want: true},
		{name: "conflict text", err: errors.New("telegram: Conflict: terminated by other getUpdates request (409)"), want: true},
		{name: "flood", err: tele.NewError(429, "Too Many Requests: retry after 5"), want: false},
		{name: "network", err: errors.New("dial tcp: i/o timeout"), want: false},
		{name: "chat not found", err: tele.ErrChatNotFound, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unrecoverable(tt.err); got != tt.want {
				t.Fatalf("unrecoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// runningAdapter returns an offline adapter in the state Start leaves it in,
// without polling or registering commands.
func runningAdapter(t *testing.T, out chan kit.Update) *Adapter {
	t.Helper()
	a, err := newAdapter(Config{Token: "123:abc"}, logx.Nop(), true)
	if err != nil {
		t.Fatalf("newAdapter: %v", err)
	}
	a.runMu.Lock()
	a.running = true
	a.out.Store((chan<- kit.Update)(out))
	a.sup = rtsup.New(context.Background(), rtsup.WithLogger(logx.Nop()), rtsup.WithCancelOnError(false))
	a.runMu.Unlock()
	return a
}

func waitClosed(t *testing.T, ch <-chan kit.Update) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("updates channel not closed")
		}
	}
}

func TestHandleErrorClosesUpdatesOnUnauthorized(t *testing.T) {
	t.Parallel()
	out := make(chan kit.Update)
	a := runningAdapter(t, out)

	// a post blocked on the unbuffered channel must be released, not panic
	sent := make(chan struct{})
	go func() {
		a.sendPost(kit.Update{Kind: kit.UpdatePost, Event: &kit.InboundEvent{Text: "x"}})
		close(sent)
	}()
	time.Sleep(50 * time.Millisecond)

	a.handleError(tele.ErrUnauthorized, nil)
	waitClosed(t, out)
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked post not released")
	}

	// later handlers and Stop are no-ops on the closed stream
	a.sendCommand(kit.Update{Kind: kit.UpdateCommand, Command: &kit.Command{Name: "status"}})
	a.handleError(errors.New("telegram: Conflict: terminated by other getUpdates request (409)"), nil)
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestHandleErrorKeepsUpdatesOnTransientError(t *testing.T) {
	t.Parallel()
	out := make(chan kit.Update, 1)
	a := runningAdapter(t, out)

	a.handleError(errors.New("dial tcp: i/o timeout"), nil)
	a.sendCommand(kit.Update{Kind: kit.UpdateCommand, Command: &kit.Command{Name: "status"}})
	select {
	case up, ok := <-out:
		if !ok || up.Command == nil || up.Command.Name != "status" {
			t.Fatalf("update = %+v, open = %v", up, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("command not delivered after a transient error")
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
