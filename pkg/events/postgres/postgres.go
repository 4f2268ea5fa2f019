// Package postgres appends order events to a PostgreSQL audit table. The
// table is write-only; the server never reads it back.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"

	"tableorders/pkg/events"
)

const schema = `CREATE TABLE IF NOT EXISTS order_events (
	id             UUID PRIMARY KEY,
	type           TEXT NOT NULL,
	order_id       BIGINT NOT NULL,
	table_number   BIGINT NOT NULL,
	menu_reference BIGINT NOT NULL,
	order_time     TIMESTAMPTZ NOT NULL,
	cooking_ms     BIGINT NOT NULL,
	at             TIMESTAMPTZ NOT NULL
)`

const insert = `INSERT INTO order_events
	(id, type, order_id, table_number, menu_reference, order_time, cooking_ms, at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

// Sink persists events in PostgreSQL.
type Sink struct {
	db *sql.DB
}

// New creates a sink over an open database.
func New(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// Open connects to url, checks the connection and creates the audit table if
// needed.
func Open(ctx context.Context, url string) (*Sink, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "db connect")
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "db ping")
	}
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the order_events table.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "create order_events")
}

// Publish inserts the event.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	_, err := s.db.ExecContext(ctx, insert, args(e)...)
	return errors.Wrapf(err, "insert event %s", e.ID)
}

// Close closes the database handle.
func (s *Sink) Close() error {
	return s.db.Close()
}

func args(e events.Event) []any {
	o := e.Order
	return []any{
		e.ID.String(),
		string(e.Type),
		int64(o.ID),
		int64(o.TableNumber),
		int64(o.MenuReference),
		o.OrderTime,
		o.CookingTime.Milliseconds(),
		e.At,
	}
}
