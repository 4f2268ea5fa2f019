// Package redis publishes order events on a Redis pub/sub channel.
package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"tableorders/pkg/events"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "orders:events"

// Sink publishes events as JSON on a redis channel.
type Sink struct {
	client  *redis.Client
	channel string
}

// New wraps an existing client.
func New(client *redis.Client, channel string) *Sink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Sink{client: client, channel: channel}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, channel string) (*Sink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}
	return New(client, channel), nil
}

// Publish sends the JSON-encoded event to the channel.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return err
	}
	return errors.Wrap(s.client.Publish(ctx, s.channel, payload).Err(), "redis publish")
}

// Close closes the redis client.
func (s *Sink) Close() error {
	return s.client.Close()
}
