package order

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// OrderItem is one menu item ordered at a table. It is never modified once
// created.
type OrderItem struct {
	ID            uint64        `json:"id"`
	TableNumber   uint64        `json:"table_number"`
	MenuReference uint64        `json:"menu_reference"`
	OrderTime     time.Time     `json:"order_time"`
	CookingTime   time.Duration `json:"cooking_time"`
}

// Repository defines the operations available on the table order store.
// Implementations must be safe for concurrent use.
type Repository interface {
	ListOrders(ctx context.Context, table uint64) ([]OrderItem, error)
	GetOrder(ctx context.Context, table, id uint64) (OrderItem, error)
	AddOrder(ctx context.Context, table, menu uint64, cooking time.Duration) (OrderItem, error)
	DeleteOrder(ctx context.Context, table, id uint64) error
	Tables() int
}

var (
	// ErrNotFound indicates the table or order does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest indicates a malformed request, such as a non-numeric id.
	ErrBadRequest = errors.New("bad request")
	// ErrInternalFault marks an unexpected failure while handling a request.
	ErrInternalFault = errors.New("internal fault")
)
