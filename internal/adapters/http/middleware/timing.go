package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"clubhouse/internal/adapters/http/perf"
	"clubhouse/pkg/logger"
)

// DefaultSlowRequest is used when Timing gets a non-positive threshold.
const DefaultSlowRequest = 500 * time.Millisecond

// unmatchedRoute names requests no route matched, so 404 probes share one bucket.
const unmatchedRoute = "unmatched"

var requestIDCounter atomic.Uint64

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the underlying ResponseWriter.
func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

var statusWriterPool = sync.Pool{
	New: func() any {
		return &statusWriter{}
	},
}

// Timing logs every request and records it on collector when one is given.
// Mount it with chi's Use so the matched route pattern is available after the handler runs.
// Requests at or above threshold log slow_request at warn; the rest log request at debug.
func Timing(collector *perf.Collector, threshold time.Duration) func(http.Handler) http.Handler {
	if threshold <= 0 {
		threshold = DefaultSlowRequest
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := requestIDCounter.Add(1)

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			defer func() {
				d := time.Since(start)
				route := routePattern(r)

				kv := []any{
					"request_id", reqID,
					"method", r.Method,
					"route", route,
					"path", r.URL.Path,
					"status", sw.status,
					"duration_ms", float64(d.Microseconds()) / 1000,
				}
				if d >= threshold {
					logger.Warn("slow_request", kv...)
				} else {
					logger.Debug("request", kv...)
				}
				if collector != nil {
					collector.RecordRequest(r.Method, route, sw.status, d, start)
				}

				sw.ResponseWriter = nil
				statusWriterPool.Put(sw)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
