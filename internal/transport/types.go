package transport

import (
	"context"
	"strconv"
	"strings"
	"time"
)

type UpdateKind string

const (
	// UpdatePost is a channel post (or a group message) that may carry identifiers.
	UpdatePost UpdateKind = "post"
	// UpdateCommand is a bot command addressed to relaybot itself (/start, /status).
	UpdateCommand UpdateKind = "command"
)

type Update struct {
	Kind    UpdateKind
	Event   *InboundEvent
	Command *Command
}

// InboundEvent is a message observed on a chat the bot can see.
//
// Origin is the chat handle without any guarantee about a leading '@'.
// HasOrigin is false when the transport could not resolve a public handle
// (private chats, channels without a username).
type InboundEvent struct {
	Origin    string
	HasOrigin bool
	ChatID    int64
	MessageID int
	Text      string
	At        time.Time
}

type Command struct {
	Name   string // without leading '/', lower-case
	Args   []string
	Chat   ChatTarget
	FromID int64
}

// ChatTarget addresses a chat either by numeric ID or by public username.
// Username wins when both are set.
type ChatTarget struct {
	ChatID   int64
	Username string
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 && strings.TrimSpace(t.Username) == "" }

func (t ChatTarget) String() string {
	if u := strings.TrimSpace(t.Username); u != "" {
		return "@" + strings.TrimPrefix(u, "@")
	}
	if t.ChatID == 0 {
		return ""
	}
	return strconv.FormatInt(t.ChatID, 10)
}

// ParseChatTarget accepts "@name", "name" or a numeric chat id ("-100123...").
func ParseChatTarget(raw string) ChatTarget {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ChatTarget{ChatID: id}
	}
	return ChatTarget{Username: strings.TrimPrefix(s, "@")}
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound half of a transport: "send text T to destination D".
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
