package transport

import (
	"net/http"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture the status code a
// handler wrote, and to forward Flush so streamed NDJSON handlers keep
// working through the middleware chain.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// logRequest logs one line per request at Info level once the handler
// returns; it does not duplicate the tool-call/loop-exhaustion metrics
// pkg/observability already records, since no request-level Prometheus
// surface is part of this engine's narrow metrics scope (§9
// "Observability hooks").
func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}
