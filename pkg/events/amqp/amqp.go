// Package amqp publishes order events to a RabbitMQ fanout exchange.
package amqp

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"tableorders/pkg/events"
)

// DefaultExchange is used when no exchange is configured.
const DefaultExchange = "orders_fanout"

// Sink publishes events to a fanout exchange.
type Sink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	// amqp channels are not safe for concurrent publishing.
	mu sync.Mutex
}

// Dial connects to url and declares a durable fanout exchange.
func Dial(url, exchange string) (*Sink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "amqp dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "amqp channel")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &Sink{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends e as a persistent JSON message. Calls are serialized.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	pub, err := publishing(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.ch.PublishWithContext(ctx, s.exchange, "", false, false, pub), "amqp publish")
}

// Close closes the channel and the connection.
func (s *Sink) Close() error {
	var err error
	if s.ch != nil {
		err = s.ch.Close()
	}
	if s.conn != nil {
		err = errors.CombineErrors(err, s.conn.Close())
	}
	return err
}

func publishing(e events.Event) (amqp.Publishing, error) {
	body, err := e.Marshal()
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     e.ID.String(),
		CorrelationId: e.Key(),
		Type:          string(e.Type),
		Timestamp:     e.At,
		Body:          body,
	}, nil
}
