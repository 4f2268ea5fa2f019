package events

import (
	"context"
	"time"

	"tableorders/pkg/logger"
	"tableorders/pkg/order"
)

// DefaultPublishTimeout bounds one Publish call when Wrap is given no timeout.
const DefaultPublishTimeout = 2 * time.Second

// Repository wraps an order.Repository and journals every successful add
// and delete to a Sink.
type Repository struct {
	order.Repository
	sink    Sink
	log     *logger.Logger
	timeout time.Duration
}

// Wrap decorates repo. A nil sink journals nothing. Each publish is cut off
// after timeout; a non-positive timeout uses DefaultPublishTimeout.
func Wrap(repo order.Repository, sink Sink, log *logger.Logger, timeout time.Duration) *Repository {
	if sink == nil {
		sink = Discard{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Repository{Repository: repo, sink: sink, log: log, timeout: timeout}
}

// AddOrder adds the order and publishes an OrderAdded event.
func (r *Repository) AddOrder(ctx context.Context, table, menu uint64, cooking time.Duration) (order.OrderItem, error) {
	o, err := r.Repository.AddOrder(ctx, table, menu, cooking)
	if err != nil {
		return o, err
	}
	r.publish(ctx, NewEvent(OrderAdded, o))
	return o, nil
}

// DeleteOrder deletes the order and publishes an OrderDeleted event carrying
// the removed item.
func (r *Repository) DeleteOrder(ctx context.Context, table, id uint64) error {
	// Orders are immutable, so the item read here is the one being deleted.
	o, err := r.Repository.GetOrder(ctx, table, id)
	if err != nil {
		return err
	}
	if err := r.Repository.DeleteOrder(ctx, table, id); err != nil {
		return err
	}
	r.publish(ctx, NewEvent(OrderDeleted, o))
	return nil
}

func (r *Repository) publish(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.sink.Publish(ctx, e); err != nil {
		r.log.Warn(ctx, "publish order event", "error", err, "event_id", e.ID.String(), "type", string(e.Type))
	}
}
