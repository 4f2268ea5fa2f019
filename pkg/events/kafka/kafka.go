// Package kafka writes order events to a Kafka topic keyed by table number.
package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"tableorders/pkg/events"
)

// Sink publishes events with a synchronous kafka.Writer.
type Sink struct {
	writer *kafka.Writer
}

// New creates a writer for topic. No connection is made until the first
// publish.
func New(brokers []string, topic string) *Sink {
	return &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes e and waits for all in-sync replicas to acknowledge it.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	msg, err := message(e)
	if err != nil {
		return err
	}
	return errors.Wrap(s.writer.WriteMessages(ctx, msg), "kafka write")
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

func message(e events.Event) (kafka.Message, error) {
	value, err := e.Marshal()
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID.String())},
		},
	}, nil
}
