package server

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"tableorders/pkg/events"
	"tableorders/pkg/metrics"
	"tableorders/pkg/order"
	"tableorders/pkg/order/memory"
	"tableorders/pkg/page"
	"tableorders/pkg/router"
	"tableorders/pkg/worker"
)

type panickyRepo struct {
	order.Repository
}

func (panickyRepo) ListOrders(context.Context, uint64) ([]order.OrderItem, error) {
	panic("list exploded")
}

// stalledSink never delivers; Publish returns only when its context ends.
type stalledSink struct{}

func (stalledSink) Publish(ctx context.Context, _ events.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledSink) Close() error { return nil }

type testServer struct {
	addr   string
	pool   *worker.Pool
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, repo order.Repository) *testServer {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	pages, err := page.NewRenderer()
	require.NoError(t, err)
	pool := worker.New(worker.Config{Workers: 4, Metrics: m})
	srv := New(Config{
		Pool:    pool,
		Router:  router.New(repo, m),
		Pages:   pages,
		Metrics: m,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{addr: ln.Addr().String(), pool: pool, cancel: cancel, done: make(chan error, 1)}
	go func() { ts.done <- srv.Serve(ctx, ln) }()
	t.Cleanup(ts.stop)
	return ts
}

func (ts *testServer) stop() {
	ts.cancel()
	<-ts.done
	ts.pool.Close()
}

func do(t *testing.T, addr, method, path string) (int, string) {
	t.Helper()
	status, body, err := exchange(addr, method, path)
	require.NoError(t, err)
	return status, body
}

// exchange sends one request and reads the full response.
func exchange(addr, method, path string) (int, string, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return 0, "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	if _, err := fmt.Fprintf(conn, "%s %s HTTP/1.1\r\nHost: test\r\nContent-Length: 0\r\n\r\n", method, path); err != nil {
		return 0, "", err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), err
}

func TestServeOrderLifecycle(t *testing.T) {
	ts := startServer(t, memory.New(100, nil))

	status, body := do(t, ts.addr, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Table Orders")

	status, body = do(t, ts.addr, http.MethodGet, "/tables/3")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "<ul></ul>")

	status, body = do(t, ts.addr, http.MethodPost, "/tables/3/AddItem/2")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Order Menu Reference: 2")

	var id uint64
	i := strings.Index(body, "Order ID: ")
	require.GreaterOrEqual(t, i, 0)
	_, err := fmt.Sscanf(body[i:], "Order ID: %d", &id)
	require.NoError(t, err)

	status, body = do(t, ts.addr, http.MethodDelete, fmt.Sprintf("/tables/3/%d", id))
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "<ul></ul>")

	status, _ = do(t, ts.addr, http.MethodGet, "/tables/999")
	require.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, ts.addr, http.MethodGet, "/tables/abc")
	require.Equal(t, http.StatusBadRequest, status)
	status, body = do(t, ts.addr, http.MethodGet, "/bogus/path")
	require.Equal(t, http.StatusNotFound, status)
	require.Contains(t, body, "Oops!")
}

func TestServeConcurrentAdds(t *testing.T) {
	repo := memory.New(10, nil)
	ts := startServer(t, repo)

	const clients, perClient = 8, 10
	var wg sync.WaitGroup
	for range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perClient {
				conn, err := net.Dial("tcp", ts.addr)
				if err != nil {
					t.Error(err)
					return
				}
				fmt.Fprintf(conn, "POST /tables/7/AddItem/1 HTTP/1.1\r\nHost: test\r\n\r\n")
				resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
				if err != nil {
					t.Error(err)
				} else {
					resp.Body.Close()
				}
				conn.Close()
			}
		}()
	}
	wg.Wait()

	list, err := repo.ListOrders(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, list, clients*perClient)
}

func TestServeStalledJournalDoesNotHoldWorkers(t *testing.T) {
	repo := events.Wrap(memory.New(10, nil), stalledSink{}, nil, 100*time.Millisecond)
	ts := startServer(t, repo)

	// More concurrent adds than workers; each must still be answered.
	const clients = 8
	var wg sync.WaitGroup
	start := time.Now()
	for range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, body, err := exchange(ts.addr, http.MethodPost, "/tables/3/AddItem/2")
			if err != nil {
				t.Error(err)
				return
			}
			if status != http.StatusOK || !strings.Contains(body, "Order Menu Reference: 2") {
				t.Errorf("unexpected response %d: %s", status, body)
			}
		}()
	}
	wg.Wait()
	require.Less(t, time.Since(start), 5*time.Second)

	list, err := repo.ListOrders(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, list, clients)
}

func TestServePanicKeepsServing(t *testing.T) {
	ts := startServer(t, panickyRepo{Repository: memory.New(10, nil)})

	status, body := do(t, ts.addr, http.MethodGet, "/tables/1")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body, "Request failed")

	status, _ = do(t, ts.addr, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, status)
}

func TestServeMalformedRequest(t *testing.T) {
	ts := startServer(t, memory.New(10, nil))

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("garbage\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeStopsOnCancel(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	pages, err := page.NewRenderer()
	require.NoError(t, err)
	pool := worker.New(worker.Config{Workers: 1})
	defer pool.Close()
	srv := New(Config{Pool: pool, Router: router.New(memory.New(1, nil), m), Pages: pages})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	_, err = net.Dial("tcp", ln.Addr().String())
	require.Error(t, err)
}

func TestServeStopsWhenPoolClosed(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	pages, err := page.NewRenderer()
	require.NoError(t, err)
	pool := worker.New(worker.Config{Workers: 1})
	pool.Close()
	srv := New(Config{Pool: pool, Router: router.New(memory.New(1, nil), m), Pages: pages})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve kept accepting after the pool closed")
	}
}

func TestReadRequest(t *testing.T) {
	raw := "POST /tables/3/AddItem/2?x=1 HTTP/1.1\r\nHost: test\r\nContent-Length: 5\r\n\r\nhello"
	req, path, err := readRequest(strings.NewReader(raw), 1024)
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/tables/3/AddItem/2", path)
	require.Equal(t, []string{"tables", "3", "AddItem", "2"}, req.Segments)
	require.Equal(t, []byte("hello"), req.Body)

	_, _, err = readRequest(strings.NewReader("nonsense"), 1024)
	require.True(t, errors.Is(err, order.ErrBadRequest))
}

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer
	body := "<p>héllo</p>"
	require.NoError(t, writeResponse(&buf, http.StatusNotFound, body))

	resp, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, int64(len(body)), resp.ContentLength)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, body, string(got))
}
