package notifier

import (
	"time"

	kit "relaybot/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Notification is one text addressed to one chat.
type Notification struct {
	Kind    string // short label for events and logs, e.g. "relay", "report"
	Target  kit.ChatTarget
	Text    string
	Options *kit.SendOptions
}

type HistoryItem struct {
	At   time.Time
	Kind string
	Text string
}

// Event is the payload of notifier events on the event bus.
type Event struct {
	Kind   string    `json:"kind"`
	Target string    `json:"target"`
	At     time.Time `json:"at"`
	Tries  int       `json:"tries,omitempty"`
	Error  string    `json:"error,omitempty"`
}
