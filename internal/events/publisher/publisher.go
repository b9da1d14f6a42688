// Package publisher delivers relayed outbox events to their sink.
package publisher

import (
	"context"
	"log/slog"

	"entrypass/internal/events"
	"entrypass/internal/platform/kafka"
)

// Producer is the subset of the Kafka producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka publishes events keyed by visit code with the type in a header.
type Kafka struct {
	producer Producer
}

func NewKafka(producer Producer) *Kafka {
	return &Kafka{producer: producer}
}

func (k *Kafka) Publish(ctx context.Context, batch []events.Event) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, e := range batch {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: map[string]string{
				"event_id":   e.ID.String(),
				"event_type": string(e.Type),
			},
		})
	}
	return k.producer.Publish(ctx, msgs...)
}

// Log writes events to the structured log; used when no broker is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, batch []events.Event) error {
	for _, e := range batch {
		l.logger.InfoContext(ctx, "domain event",
			"event_id", e.ID.String(),
			"event_type", string(e.Type),
			"code", e.AggregateID,
			"payload", string(e.Payload),
		)
	}
	return nil
}
