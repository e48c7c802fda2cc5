package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout sets a deadline on each request context. If the handler has
// not returned when the deadline passes, the client gets a 504.
//
// The handler writes into a buffer that reaches the client only if it
// finishes in time. After a timeout the middleware still waits for the
// handler to return, so echo does not recycle the context while it is in use.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			res := c.Response()
			orig := res.Writer
			tw := newTimeoutWriter(orig.Header())
			res.Writer = tw

			done := make(chan error, 1)
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						panicked <- r
					}
				}()
				done <- next(c)
			}()

			select {
			case err := <-done:
				res.Writer = orig
				if ferr := tw.flushTo(orig); ferr != nil && err == nil {
					err = ferr
				}
				return err
			case r := <-panicked:
				res.Writer = orig
				// Partial output was buffered only; let Recovery write the 500.
				res.Committed, res.Status, res.Size = false, 0, 0
				// Re-raise on the request goroutine so Recovery sees it.
				panic(r)
			case <-ctx.Done():
			}

			tw.timeOut()
			deadline := errors.Is(ctx.Err(), context.DeadlineExceeded)
			if deadline {
				writeGatewayTimeout(orig)
			}

			var late any
			select {
			case <-done:
			case late = <-panicked:
			}
			res.Writer = orig

			if !deadline {
				// Client went away; there is no one to answer.
				return ctx.Err()
			}
			res.Committed, res.Status = true, http.StatusGatewayTimeout
			if late != nil {
				panic(late)
			}
			return nil
		}
	}
}

func writeGatewayTimeout(w http.ResponseWriter) {
	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	w.WriteHeader(http.StatusGatewayTimeout)
	_, _ = w.Write([]byte(`{"message":"request timed out"}` + "\n"))
}

// timeoutWriter holds the handler's response until RequestTimeout decides
// whether it goes out. Writes after the deadline are refused.
type timeoutWriter struct {
	mu       sync.Mutex
	header   http.Header
	buf      bytes.Buffer
	status   int
	timedOut bool
}

func newTimeoutWriter(h http.Header) *timeoutWriter {
	hdr := h.Clone()
	if hdr == nil {
		hdr = make(http.Header)
	}
	return &timeoutWriter{header: hdr}
}

func (w *timeoutWriter) Header() http.Header {
	return w.header
}

func (w *timeoutWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut || w.status != 0 {
		return
	}
	w.status = code
}

func (w *timeoutWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(b)
}

func (w *timeoutWriter) timeOut() {
	w.mu.Lock()
	w.timedOut = true
	w.mu.Unlock()
}

// flushTo copies the handler's headers, status and body to dst. Nothing is
// written when the handler never produced a status.
func (w *timeoutWriter) flushTo(dst http.ResponseWriter) error {
	h := dst.Header()
	for k := range h {
		delete(h, k)
	}
	for k, v := range w.header {
		h[k] = v
	}

	if w.status == 0 {
		return nil
	}
	dst.WriteHeader(w.status)
	if w.buf.Len() > 0 {
		_, err := dst.Write(w.buf.Bytes())
		return err
	}
	return nil
}
