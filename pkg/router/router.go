// Package router maps a parsed request onto order store operations and
// renders the outcome as an HTML fragment. It performs no I/O of its own.
package router

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tableorders/pkg/metrics"
	"tableorders/pkg/order"
	"tableorders/pkg/otel"
)

// DefaultCookingTime is assigned to every order added through the router.
const DefaultCookingTime = 5 * time.Minute

// Kind tags what a Result carries.
type Kind int

const (
	KindLanding    Kind = iota // landing page, no store access
	KindOrderList              // a table's orders
	KindOrder                  // a single order
	KindNotFound               // unknown route, table or order
	KindBadRequest             // malformed id or request
	KindFault                  // store failure
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case KindLanding:
		return "landing"
	case KindOrderList:
		return "order_list"
	case KindOrder:
		return "order"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindFault:
		return "fault"
	}
	return "unknown"
}

// Request is a parsed inbound request.
type Request struct {
	Method   string
	Segments []string
	Body     []byte
}

// Result is the routing outcome: a status, what kind of page to render and
// the fragment to embed in it. Err is set for the error kinds.
type Result struct {
	Status   int
	Kind     Kind
	Fragment string
	Err      error
}

// Router dispatches requests to an order.Repository.
type Router struct {
	repo    order.Repository
	metrics *metrics.Metrics
}

// New returns a Router over repo. m may be nil.
func New(repo order.Repository, m *metrics.Metrics) *Router {
	return &Router{repo: repo, metrics: m}
}

// SplitPath turns "/tables/3/7" into ["tables", "3", "7"]. The query string
// and one leading and trailing slash are dropped; empty segments in between
// are kept so Route can reject them.
func SplitPath(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Route decides which store operation a request maps to, runs it and renders
// the result.
func (rt *Router) Route(ctx context.Context, req Request) Result {
	segs := req.Segments
	if len(segs) == 0 {
		return landing()
	}
	if slices.Contains(segs, "") || !strings.EqualFold(segs[0], "tables") {
		return notFound(nil)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	switch {
	case len(segs) == 1 && method == http.MethodGet:
		// Listing every table is not implemented.
		return landing()

	case len(segs) == 2 && method == http.MethodGet:
		table, err := parseID("table", segs[1])
		if err != nil {
			return failure(err)
		}
		return rt.list(ctx, table)

	case len(segs) == 3 && method == http.MethodGet:
		table, orderID, err := parsePair(segs[1], "order", segs[2])
		if err != nil {
			return failure(err)
		}
		return rt.get(ctx, table, orderID)

	case len(segs) == 3 && method == http.MethodDelete:
		table, orderID, err := parsePair(segs[1], "order", segs[2])
		if err != nil {
			return failure(err)
		}
		if err := rt.delete(ctx, table, orderID); err != nil {
			return failure(err)
		}
		return rt.list(ctx, table)

	case len(segs) == 4 && method == http.MethodPost && strings.EqualFold(segs[2], "AddItem"):
		table, menu, err := parsePair(segs[1], "menu", segs[3])
		if err != nil {
			return failure(err)
		}
		if err := rt.add(ctx, table, menu); err != nil {
			return failure(err)
		}
		return rt.list(ctx, table)
	}
	return notFound(nil)
}

func (rt *Router) list(ctx context.Context, table uint64) Result {
	ctx, span := otel.AddSpan(ctx, "order.ListOrders", attribute.Int64("table", int64(table)))
	defer span.End()

	orders, err := rt.repo.ListOrders(ctx, table)
	rt.record(span, "list", err)
	if err != nil {
		return failure(err)
	}
	return Result{Status: http.StatusOK, Kind: KindOrderList, Fragment: OrderListFragment(orders)}
}

func (rt *Router) get(ctx context.Context, table, id uint64) Result {
	ctx, span := otel.AddSpan(ctx, "order.GetOrder",
		attribute.Int64("table", int64(table)), attribute.Int64("order", int64(id)))
	defer span.End()

	o, err := rt.repo.GetOrder(ctx, table, id)
	rt.record(span, "get", err)
	if err != nil {
		return failure(err)
	}
	return Result{Status: http.StatusOK, Kind: KindOrder, Fragment: OrderFragment(o)}
}

func (rt *Router) add(ctx context.Context, table, menu uint64) error {
	ctx, span := otel.AddSpan(ctx, "order.AddOrder",
		attribute.Int64("table", int64(table)), attribute.Int64("menu", int64(menu)))
	defer span.End()

	o, err := rt.repo.AddOrder(ctx, table, menu, DefaultCookingTime)
	rt.record(span, "add", err)
	if err == nil {
		span.SetAttributes(attribute.Int64("order", int64(o.ID)))
	}
	return err
}

func (rt *Router) delete(ctx context.Context, table, id uint64) error {
	ctx, span := otel.AddSpan(ctx, "order.DeleteOrder",
		attribute.Int64("table", int64(table)), attribute.Int64("order", int64(id)))
	defer span.End()

	err := rt.repo.DeleteOrder(ctx, table, id)
	rt.record(span, "delete", err)
	return err
}

func (rt *Router) record(sp trace.Span, op string, err error) {
	switch {
	case err == nil:
		rt.metrics.StoreOp(op, "ok")
		return
	case errors.Is(err, order.ErrNotFound):
		rt.metrics.StoreOp(op, "not_found")
	default:
		rt.metrics.StoreOp(op, "error")
	}
	sp.RecordError(err)
	sp.SetStatus(codes.Error, err.Error())
}

func parseID(what, s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(order.ErrBadRequest, "%s id %q is not a non-negative integer", what, s)
	}
	return n, nil
}

func parsePair(tableSeg, what, idSeg string) (uint64, uint64, error) {
	table, err := parseID("table", tableSeg)
	if err != nil {
		return 0, 0, err
	}
	id, err := parseID(what, idSeg)
	if err != nil {
		return 0, 0, err
	}
	return table, id, nil
}

func landing() Result {
	return Result{Status: http.StatusOK, Kind: KindLanding}
}

func notFound(err error) Result {
	if err == nil {
		err = order.ErrNotFound
	}
	return Result{Status: http.StatusNotFound, Kind: KindNotFound, Fragment: errorFragment(err), Err: err}
}

// failure maps a store or validation error onto its result kind.
func failure(err error) Result {
	switch {
	case errors.Is(err, order.ErrBadRequest):
		return Result{Status: http.StatusBadRequest, Kind: KindBadRequest, Fragment: errorFragment(err), Err: err}
	case errors.Is(err, order.ErrNotFound):
		return notFound(err)
	}
	err = errors.Mark(err, order.ErrInternalFault)
	return Result{Status: http.StatusInternalServerError, Kind: KindFault, Fragment: errorFragment(order.ErrInternalFault), Err: err}
}
