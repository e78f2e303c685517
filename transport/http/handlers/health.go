package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kart-io/notifyrelay/pkg/logger"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	connections func() int
	cache       Pinger
	transport   string
	started     time.Time
	pingTimeout time.Duration
	logger      logger.Logger
}

// NewHealthHandler creates a new health handler. cache may be nil when the
// deployment runs without one.
func NewHealthHandler(connections func() int, cache Pinger, transport string, l logger.Logger) *HealthHandler {
	return &HealthHandler{
		connections: connections,
		cache:       cache,
		transport:   transport,
		started:     time.Now(),
		pingTimeout: 2 * time.Second,
		logger:      logger.OrDiscard(l),
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Uptime      int64  `json:"uptime_seconds"`
	Connections int    `json:"connections"`
	Transport   string `json:"transport"`
	Cache       string `json:"cache"`
	CacheError  string `json:"cache_error,omitempty"`
}

// Handle handles GET /health. An unreachable cache reports degraded with 503.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    int64(time.Since(h.started).Seconds()),
		Transport: h.transport,
		Cache:     "disabled",
	}
	if h.connections != nil {
		resp.Connections = h.connections()
	}

	status := http.StatusOK
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.pingTimeout)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			resp.Status = StatusDegraded
			resp.Cache = "unreachable"
			resp.CacheError = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Cache = "ok"
		}
	}

	writeJSON(w, h.logger, status, resp)
}
