package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"relaybot/internal/relay"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// OutcomeMessage is the JSON value published per relay outcome.
type OutcomeMessage struct {
	EventID    string    `json:"event_id"`
	Identifier string    `json:"identifier"`
	Channel    string    `json:"channel"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
	TookMS     int64     `json:"took_ms"`
}

func NewOutcomeMessage(r relay.Result) OutcomeMessage {
	m := OutcomeMessage{
		EventID:    r.EventID,
		Identifier: r.Identifier,
		Channel:    r.Channel,
		Outcome:    r.Outcome.String(),
		At:         r.At.UTC(),
		TookMS:     r.Took.Milliseconds(),
	}
	if r.Err != nil {
		m.Error = r.Err.Error()
	}
	return m
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes outcomes keyed by identifier, so all outcomes for one
// identifier land on the same partition.
type KafkaSink struct {
	w     messageWriter
	topic string
}

func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{w: w, topic: cfg.Topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, n relay.Notification) error {
	value, err := json.Marshal(NewOutcomeMessage(n.Result))
	if err != nil {
		return err
	}
	if err := s.w.WriteMessages(ctx, kafka.Message{Key: []byte(n.Result.Identifier), Value: value}); err != nil {
		return fmt.Errorf("kafka write %s: %w", s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.w.Close() }
