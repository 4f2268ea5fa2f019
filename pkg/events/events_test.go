package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"tableorders/pkg/order"
	"tableorders/pkg/order/memory"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (s *recordingSink) Publish(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.err
}

func TestRepositoryJournalsChanges(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	repo := Wrap(memory.New(10, nil), sink, nil, 0)

	o, err := repo.AddOrder(ctx, 4, 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteOrder(ctx, 4, o.ID))

	require.Len(t, sink.events, 2)
	require.Equal(t, OrderAdded, sink.events[0].Type)
	require.Equal(t, o, sink.events[0].Order)
	require.Equal(t, OrderDeleted, sink.events[1].Type)
	require.Equal(t, o, sink.events[1].Order)
	require.NotEqual(t, sink.events[0].ID, sink.events[1].ID)
}

func TestRepositorySkipsFailedChanges(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	repo := Wrap(memory.New(10, nil), sink, nil, 0)

	_, err := repo.AddOrder(ctx, 99, 1, time.Minute)
	require.True(t, errors.Is(err, order.ErrNotFound))
	require.True(t, errors.Is(repo.DeleteOrder(ctx, 1, 12345), order.ErrNotFound))

	_, err = repo.ListOrders(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, sink.events)
}

func TestPublishFailureKeepsChange(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{err: errors.New("broker down")}
	repo := Wrap(memory.New(1, nil), sink, nil, 0)

	o, err := repo.AddOrder(ctx, 0, 3, time.Minute)
	require.NoError(t, err)
	got, err := repo.GetOrder(ctx, 0, o.ID)
	require.NoError(t, err)
	require.Equal(t, o, got)
}

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("b failed")}
	m := Multi{a, b}

	e := NewEvent(OrderAdded, order.OrderItem{ID: 1, TableNumber: 2})
	err := m.Publish(context.Background(), e)
	require.ErrorContains(t, err, "b failed")
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)

	require.Error(t, m.Close())
	require.True(t, a.closed)
	require.True(t, b.closed)

	require.NoError(t, Discard{}.Publish(context.Background(), e))
}

func TestEventEncoding(t *testing.T) {
	e := NewEvent(OrderDeleted, order.OrderItem{ID: 9, TableNumber: 12, MenuReference: 4, CookingTime: time.Minute})
	require.Equal(t, "12", e.Key())

	b, err := e.Marshal()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, "order_deleted", decoded["type"])
	require.Equal(t, e.ID.String(), decoded["id"])
	require.EqualValues(t, 12, decoded["order"].(map[string]any)["table_number"])
}

// blockingSink holds every Publish until its context ends.
type blockingSink struct {
	calls atomic.Int64
}

func (s *blockingSink) Publish(ctx context.Context, _ Event) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingSink) Close() error { return nil }

func TestPublishIsBoundedByTimeout(t *testing.T) {
	ctx := context.Background()
	sink := &blockingSink{}
	repo := Wrap(memory.New(4, nil), sink, nil, 50*time.Millisecond)

	start := time.Now()
	o, err := repo.AddOrder(ctx, 3, 2, time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteOrder(ctx, 3, o.ID))
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, int64(2), sink.calls.Load())

	list, err := repo.ListOrders(ctx, 3)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestWrapDefaultsTimeout(t *testing.T) {
	repo := Wrap(memory.New(1, nil), nil, nil, 0)
	require.Equal(t, DefaultPublishTimeout, repo.timeout)
	require.IsType(t, Discard{}, repo.sink)
}
