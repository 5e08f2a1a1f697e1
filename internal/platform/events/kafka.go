package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes changes as JSON messages keyed by entity id, so
// that every change of a row lands on the same partition in order. Writes
// are asynchronous: Publish only enqueues, delivery failures are logged by
// the writer's completion callback.
type KafkaPublisher struct {
	w      messageWriter
	topic  string
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{topic: topic, logger: logger}
	p.w = newKafkaWriter(brokers, topic, p.completed)
	return p
}

func newKafkaWriter(brokers []string, topic string, completion func([]kafka.Message, error)) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		Async:                  true,
		Completion:             completion,
	}
}

// completed runs on the writer's goroutine once a batch is acknowledged or
// given up on.
func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.logger.Error().Err(err).
			Str("topic", p.topic).
			Str("entity_id", string(m.Key)).
			Str("entity", header(m, "entity")).
			Str("action", header(m, "action")).
			Str("tenant", header(m, "tenant")).
			Msg("deliver change event")
	}
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (p *KafkaPublisher) Publish(ctx context.Context, c Change) error {
	value, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(c.EntityID.String()),
		Value: value,
		Time:  c.OccurredAt,
		Headers: []kafka.Header{
			{Key: "entity", Value: []byte(c.Entity)},
			{Key: "action", Value: []byte(c.Action)},
			{Key: "tenant", Value: []byte(c.Tenant)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
