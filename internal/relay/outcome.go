package relay

import (
	"errors"
	"time"
)

var (
	// ErrDelivery wraps any downstream send failure. Non-fatal.
	ErrDelivery = errors.New("delivery failed")
	// ErrPersistence wraps a durable-log append failure. Non-fatal; in-memory state wins.
	ErrPersistence = errors.New("persistence failed")
	// ErrTransportDisconnect is returned by Loop.Run when the event source goes away.
	ErrTransportDisconnect = errors.New("event source disconnected")
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
	OutcomeSkippedDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeSkippedDuplicate:
		return "skipped_duplicate"
	default:
		return "unknown"
	}
}

// Result is produced once per (identifier, inbound event) pair.
type Result struct {
	EventID    string
	Identifier string
	Channel    string
	Outcome    Outcome
	Err        error
	At         time.Time
	Took       time.Duration
}
