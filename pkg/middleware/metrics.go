// Package middleware provides the HTTP middleware of the reader API:
// request IDs, CORS, Prometheus metrics and request timeouts.
package middleware

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
)

// Metrics records request count, latency and the in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

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
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

var (
	documentSegment = regexp.MustCompile(`/documents/[^/]+`)
	pageSegment     = regexp.MustCompile(`/pages/[^/]+`)
)

// normalizePath collapses document keys and page numbers so the path label
// stays bounded.
func normalizePath(path string) string {
	path = documentSegment.ReplaceAllString(path, "/documents/{key}")
	return pageSegment.ReplaceAllString(path, "/pages/{page}")
}
