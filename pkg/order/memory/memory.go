// Package memory implements an in-memory order repository with one lock per
// table.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"tableorders/pkg/order"
	"tableorders/pkg/order/sequence"
)

// table holds the orders of a single table in insertion order.
type table struct {
	mu     sync.RWMutex
	number uint64
	orders []order.OrderItem
}

// Repository provides an in-memory implementation of order.Repository.
// The set of tables is fixed at construction; only their order lists change.
type Repository struct {
	tables []*table
	seq    *sequence.Sequence
	now    func() time.Time
}

// New creates a repository with n empty tables numbered 0..n-1. Order ids
// are drawn from seq, which may be shared with other repositories.
func New(n int, seq *sequence.Sequence) *Repository {
	if seq == nil {
		seq = sequence.New(0)
	}
	r := &Repository{
		tables: make([]*table, n),
		seq:    seq,
		now:    time.Now,
	}
	for i := range r.tables {
		r.tables[i] = &table{number: uint64(i)}
	}
	return r
}

// Tables returns the number of tables in the store.
func (r *Repository) Tables() int {
	return len(r.tables)
}

func (r *Repository) table(n uint64) (*table, error) {
	if n >= uint64(len(r.tables)) {
		return nil, errors.Wrapf(order.ErrNotFound, "table %d", n)
	}
	return r.tables[n], nil
}

// ListOrders returns a copy of the orders of a table.
func (r *Repository) ListOrders(ctx context.Context, tableNum uint64) ([]order.OrderItem, error) {
	t, err := r.table(tableNum)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]order.OrderItem, len(t.orders))
	copy(out, t.orders)
	return out, nil
}

// GetOrder retrieves an order by table and id.
func (r *Repository) GetOrder(ctx context.Context, tableNum, id uint64) (order.OrderItem, error) {
	t, err := r.table(tableNum)
	if err != nil {
		return order.OrderItem{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.index(id)
	if i < 0 {
		return order.OrderItem{}, errors.Wrapf(order.ErrNotFound, "order %d at table %d", id, tableNum)
	}
	return t.orders[i], nil
}

// AddOrder creates an order and appends it to the table.
func (r *Repository) AddOrder(ctx context.Context, tableNum, menu uint64, cooking time.Duration) (order.OrderItem, error) {
	t, err := r.table(tableNum)
	if err != nil {
		return order.OrderItem{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// The id is taken under the table lock so a table's list stays sorted by id.
	o := order.OrderItem{
		ID:            r.seq.Next(),
		TableNumber:   t.number,
		MenuReference: menu,
		OrderTime:     r.now().UTC(),
		CookingTime:   cooking,
	}
	t.orders = append(t.orders, o)
	return o, nil
}

// DeleteOrder removes an order from the table.
func (r *Repository) DeleteOrder(ctx context.Context, tableNum, id uint64) error {
	t, err := r.table(tableNum)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.index(id)
	if i < 0 {
		return errors.Wrapf(order.ErrNotFound, "order %d at table %d", id, tableNum)
	}
	t.orders = slices.Delete(t.orders, i, i+1)
	return nil
}

// index returns the position of the order with the given id, or -1.
// t.mu must be held.
func (t *table) index(id uint64) int {
	return slices.IndexFunc(t.orders, func(o order.OrderItem) bool { return o.ID == id })
}
