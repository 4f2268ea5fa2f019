package kafka

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tableorders/pkg/events"
	"tableorders/pkg/order"
)

func TestMessage(t *testing.T) {
	e := events.NewEvent(events.OrderAdded, order.OrderItem{ID: 5, TableNumber: 42})
	msg, err := message(e)
	require.NoError(t, err)
	require.Equal(t, "42", string(msg.Key))
	require.Equal(t, e.At, msg.Time)

	want, err := e.Marshal()
	require.NoError(t, err)
	require.JSONEq(t, string(want), string(msg.Value))

	require.Len(t, msg.Headers, 2)
	require.Equal(t, "order_added", string(msg.Headers[0].Value))
	require.Equal(t, e.ID.String(), string(msg.Headers[1].Value))
}

func TestNewWriter(t *testing.T) {
	s := New([]string{"localhost:9092"}, "orders")
	require.Equal(t, "orders", s.writer.Topic)
	require.NoError(t, s.Close())
}
