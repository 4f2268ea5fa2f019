// Package server accepts TCP connections and hands each one to the worker
// pool as a single job.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"tableorders/pkg/logger"
	"tableorders/pkg/metrics"
	"tableorders/pkg/order"
	"tableorders/pkg/otel"
	"tableorders/pkg/page"
	"tableorders/pkg/router"
	"tableorders/pkg/worker"
)

const (
	defaultIOTimeout = 10 * time.Second
	maxBodyBytes     = 1 << 20
)

// Config wires a Server to its collaborators. Logger and Metrics may be nil.
type Config struct {
	Pool    *worker.Pool
	Router  *router.Router
	Pages   *page.Renderer
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	// IOTimeout bounds reading the request and writing the response.
	IOTimeout time.Duration
}

// Server is the TCP front end: it turns each accepted connection into one
// pool job.
type Server struct {
	pool      *worker.Pool
	router    *router.Router
	pages     *page.Renderer
	log       *logger.Logger
	metrics   *metrics.Metrics
	ioTimeout time.Duration
}

// New builds a Server, filling in a no-op logger and the default I/O timeout.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	return &Server{
		pool:      cfg.Pool,
		router:    cfg.Router,
		pages:     cfg.Pages,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		ioTimeout: cfg.IOTimeout,
	}
}

// Serve accepts connections on ln until ctx is cancelled or the pool stops
// accepting work. It closes ln before returning. Jobs already submitted keep
// running; close the pool to wait for them.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

	s.log.Info(ctx, "listening", "addr", ln.Addr().String(), "workers", s.pool.Size())
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Transient accept failures (e.g. too many open files) back off.
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.log.Warn(ctx, "accept failed", "error", err, "retry_in", backoff.String())
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		backoff = 0

		if err := s.pool.Submit(func(jobCtx context.Context) error {
			return s.Handle(jobCtx, conn)
		}); err != nil {
			_ = conn.Close()
			if errors.Is(err, worker.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "submit connection")
		}
	}
}

// Handle serves one request on conn and closes it.
func (s *Server) Handle(ctx context.Context, conn net.Conn) error {
	start := time.Now()
	requestID := uuid.NewString()
	ctx, span := otel.AddSpan(ctx, "server.Handle", attribute.String("request_id", requestID))
	defer span.End()
	log := s.log.With("request_id", requestID, "remote", conn.RemoteAddr().String())

	defer conn.Close()
	_ = conn.SetDeadline(start.Add(s.ioTimeout))

	defer func() {
		if r := recover(); r != nil {
			// Answer the client, then let the pool recover and log the panic.
			s.metrics.Request(router.KindFault.String(), http.StatusInternalServerError, time.Since(start))
			_ = writeResponse(conn, http.StatusInternalServerError, s.pages.Render(router.Result{
				Status: http.StatusInternalServerError, Kind: router.KindFault,
			}))
			panic(r)
		}
	}()

	req, path, err := readRequest(conn, maxBodyBytes)
	var res router.Result
	if err != nil {
		log.Warn(ctx, "malformed request", "error", err)
		res = router.Result{Status: http.StatusBadRequest, Kind: router.KindBadRequest, Err: err}
	} else {
		log.Debug(ctx, "request", "method", req.Method, "path", path)
		res = s.router.Route(ctx, req)
	}

	if errors.Is(res.Err, order.ErrInternalFault) {
		log.Error(ctx, "request failed", "error", res.Err, "path", path)
	}
	s.metrics.Request(res.Kind.String(), res.Status, time.Since(start))
	span.SetAttributes(attribute.Int("status", res.Status), attribute.String("kind", res.Kind.String()))

	if err := writeResponse(conn, res.Status, s.pages.Render(res)); err != nil {
		return errors.Wrapf(err, "request %s", requestID)
	}
	return nil
}
