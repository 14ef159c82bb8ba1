package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	logx "relaybot/pkg/logx"
)

// Notification is the rendered form of a Result handed to sinks.
type Notification struct {
	Result Result
	Text   string
}

// Sink is a notification destination other than the downstream consumer.
// Sinks fail independently; errors are logged by the Fanout and go no further.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

const notifyTimeFormat = "2006-01-02 15:04:05"

// Render produces the human-readable text for a result.
func Render(r Result) string {
	switch r.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("✅ Relayed %s from @%s at %s", r.Identifier, r.Channel, r.At.Format(notifyTimeFormat))
	case OutcomeFailure:
		msg := "unknown error"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return fmt.Sprintf("❌ Failed to relay %s from @%s. Error: %s", r.Identifier, r.Channel, msg)
	case OutcomeSkippedDuplicate:
		return fmt.Sprintf("⏭️ Skipped duplicate %s from @%s", r.Identifier, r.Channel)
	default:
		return fmt.Sprintf("%s %s from @%s", r.Outcome, r.Identifier, r.Channel)
	}
}

// Fanout delivers every result to all sinks concurrently and waits for them,
// each bounded by timeout.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	log     logx.Logger
}

func NewFanout(log logx.Logger, timeout time.Duration, sinks ...Sink) *Fanout {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out, timeout: timeout, log: log}
}

func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Emit never returns an error and never panics on a misbehaving sink.
func (f *Fanout) Emit(ctx context.Context, r Result) {
	if len(f.sinks) == 0 {
		return
	}
	n := Notification{Result: r, Text: Render(r)}

	var wg sync.WaitGroup
	for _, s := range f.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					f.log.Error("notification sink panicked", logx.String("sink", s.Name()), logx.Any("panic", p))
				}
			}()
			sctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			if err := s.Deliver(sctx, n); err != nil {
				f.log.Warn("notification sink failed",
					logx.String("sink", s.Name()),
					logx.String("id", r.Identifier),
					logx.String("outcome", r.Outcome.String()),
					logx.Err(err),
				)
			}
		}(s)
	}
	wg.Wait()
}
