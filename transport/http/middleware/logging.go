package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kart-io/notifyrelay/pkg/logger"
)

// LoggingMiddleware provides request logging for HTTP transport
type LoggingMiddleware struct {
	logger logger.Logger
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(l logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.OrDiscard(l),
	}
}

// Middleware returns the HTTP middleware function
func (l *LoggingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// The wrapper keeps http.Hijacker so websocket upgrades pass through.
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// Hijacked or nothing written.
			status = http.StatusOK
		}

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if id := chimw.GetReqID(r.Context()); id != "" {
			fields = append(fields, "request_id", id)
		}

		if status >= http.StatusInternalServerError {
			l.logger.Warn("HTTP request", fields...)
			return
		}
		l.logger.Info("HTTP request", fields...)
	})
}
