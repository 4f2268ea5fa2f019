package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"

	"tableorders/pkg/order"
	"tableorders/pkg/router"
)

// readRequest parses one HTTP request from r.
func readRequest(r io.Reader, maxBody int64) (router.Request, string, error) {
	req, err := http.ReadRequest(bufio.NewReader(r))
	if err != nil {
		return router.Request{}, "", errors.Mark(errors.Wrap(err, "read request"), order.ErrBadRequest)
	}
	defer req.Body.Close()

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBody))
	if err != nil {
		return router.Request{}, "", errors.Mark(errors.Wrap(err, "read body"), order.ErrBadRequest)
	}
	return router.Request{
		Method:   req.Method,
		Segments: router.SplitPath(req.URL.Path),
		Body:     body,
	}, req.URL.Path, nil
}

// writeResponse frames body as a complete HTTP/1.1 response and closes the
// exchange.
func writeResponse(w io.Writer, status int, body string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	fmt.Fprintf(bw, "Content-Type: text/html; charset=utf-8\r\n")
	fmt.Fprintf(bw, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(bw, "Connection: close\r\n\r\n")
	bw.WriteString(body)
	return errors.Wrap(bw.Flush(), "write response")
}
