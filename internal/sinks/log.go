package sinks

import (
	"context"

	"relaybot/internal/relay"
	logx "relaybot/pkg/logx"
)

// LogSink writes each outcome as one structured log line.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n relay.Notification) error {
	r := n.Result
	fields := []logx.Field{
		logx.String("event_id", r.EventID),
		logx.String("id", r.Identifier),
		logx.String("channel", r.Channel),
		logx.String("outcome", r.Outcome.String()),
		logx.Duration("took", r.Took),
	}
	if r.Outcome == relay.OutcomeFailure {
		s.log.Warn(n.Text, append(fields, logx.Err(r.Err))...)
		return nil
	}
	s.log.Info(n.Text, fields...)
	return nil
}
