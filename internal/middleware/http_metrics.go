// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are exact paths that need no normalization.
var staticRoutes = map[string]bool{
	"/":                  true,
	"/exercises":         true,
	"/protocols":         true,
	"/blocks":            true,
	"/workouts":          true,
	"/programs":          true,
	"/access/status":     true,
	"/payments/checkout": true,
	"/internal/stripe":   true,
	"/health":            true,
	"/ready":             true,
	"/metrics":           true,
}

// catalogPrefixes are collections with /{collection}/{id} routes.
var catalogPrefixes = []string{"exercises", "protocols", "blocks", "workouts", "programs"}

// normalizePath converts paths with dynamic segments to route patterns to prevent
// cardinality explosion in metrics. This maps paths like /programs/123 to /programs/{id}.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	parts := strings.Split(path, "/")
	for _, prefix := range catalogPrefixes {
		if len(parts) >= 3 && parts[1] == prefix && parts[2] != "" {
			// /programs/{id}/publish, /programs/{id}/grants, reorder routes
			if len(parts) == 4 && (parts[3] == "publish" || parts[3] == "grants" || parts[3] == "workout-order" || parts[3] == "block-order") {
				return "/" + prefix + "/{id}/" + parts[3]
			}
			// /programs/{id}/grants/{user_id}
			if len(parts) == 5 && parts[3] == "grants" && parts[4] != "" {
				return "/" + prefix + "/{id}/grants/{user_id}"
			}
			// /{collection}/{id}
			if len(parts) == 3 {
				return "/" + prefix + "/{id}"
			}
		}
	}

	// Fallback: return as-is for unknown patterns so new routes still
	// surface in metrics.
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Health check endpoints (/health, /ready) are excluded from metrics to avoid cardinality issues.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			duration := time.Since(start).Seconds()

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				duration,
				requestSize,
				mrw.size,
			)
		})
	}
}
