// Package events publishes a journal of order changes to external sinks.
//
// Publishing happens after the store has applied a change and released its
// locks. A failed publish is logged and never undoes the change.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"tableorders/pkg/order"
)

// Type names the change an Event describes.
type Type string

const (
	OrderAdded   Type = "order_added"
	OrderDeleted Type = "order_deleted"
)

// Event is one journal entry.
type Event struct {
	ID    uuid.UUID       `json:"id"`
	Type  Type            `json:"type"`
	Order order.OrderItem `json:"order"`
	At    time.Time       `json:"at"`
}

// NewEvent stamps a fresh event for o.
func NewEvent(t Type, o order.OrderItem) Event {
	return Event{ID: uuid.New(), Type: t, Order: o, At: time.Now().UTC()}
}

// Key is the table number, used as the partition or routing key.
func (e Event) Key() string {
	return strconv.FormatUint(e.Order.TableNumber, 10)
}

// Marshal encodes the event as JSON.
func (e Event) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	return b, errors.Wrap(err, "marshal event")
}

// Sink receives journal events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Multi fans an event out to every sink.
type Multi []Sink

// Publish sends e to every sink and combines their errors.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var err error
	for _, s := range m {
		err = errors.CombineErrors(err, s.Publish(ctx, e))
	}
	return err
}

// Close closes every sink.
func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = errors.CombineErrors(err, s.Close())
	}
	return err
}

// Discard drops every event.
type Discard struct{}

// Publish drops e.
func (Discard) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }
