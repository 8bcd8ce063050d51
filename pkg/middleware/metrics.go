package middleware

import (
	"net/http"
	"time"

	"github.com/ekaya-inc/forvm-engine/pkg/metrics"
)

// unmatchedRoute labels requests no pattern matched, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// RequestMetrics records request counts and latency per mux pattern.
// Pass nil metrics to disable.
func RequestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			// ServeMux fills r.Pattern in place once it has routed the request.
			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			m.ObserveHTTP(route, wrapped.statusCode, time.Since(start))
		})
	}
}
