// Package middleware provides the HTTP middleware of the schema service:
// request ids, Prometheus metrics, CORS, write rate limiting and request
// timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robso86/jsonschema-mapper/pkg/metrics"
)

// Metrics records request count, latency and the in-flight gauge. Paths
// and methods are reduced to the routes the service knows.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			method, path := normalizeMethod(r.Method), normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

func normalizeMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions, http.MethodHead:
		return method
	default:
		return "other"
	}
}

// normalizePath collapses unknown paths so scanners cannot blow up label
// cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/schemas/ids"):
		return "/api/v1/schemas/ids"
	case strings.HasPrefix(path, "/api/v1/schemas/ref"):
		return "/api/v1/schemas/ref"
	case strings.HasPrefix(path, "/api/v1/schemas"):
		return "/api/v1/schemas"
	case strings.HasPrefix(path, "/api/v1/cache"), strings.HasPrefix(path, "/health"):
		return path
	default:
		return "other"
	}
}
