// Package http exposes notifyrelay over HTTP: the send API, the realtime
// websocket endpoint and the health check.
package http

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kart-io/notifyrelay/pkg/config"
	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/realtime"
	"github.com/kart-io/notifyrelay/transport/http/handlers"
	"github.com/kart-io/notifyrelay/transport/http/middleware"
)

// Dispatcher is the part of the dispatcher the server drives.
type Dispatcher interface {
	handlers.Dispatcher
	// Wait blocks until background work started by dispatches is finished.
	Wait()
}

// Deps holds the components the server wires together.
type Deps struct {
	Dispatcher Dispatcher
	Realtime   *realtime.Channel
	// Cache is optional; nil reports the cache as disabled.
	Cache     handlers.Pinger
	Transport string
	Logger    logger.Logger
}

// Server owns the HTTP listener and the realtime channel lifecycle.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router chi.Router
	server *http.Server
	logger logger.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrMissingConfig, "server configuration is required")
	}
	if deps.Dispatcher == nil || deps.Realtime == nil {
		return nil, errors.New(errors.ErrMissingConfig, "dispatcher and realtime channel are required")
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.OrDiscard(deps.Logger),
	}
	s.router = s.setupRouter()
	s.server = &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        s.router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return s, nil
}

func (s *Server) setupRouter() chi.Router {
	cors := &middleware.CORSConfig{
		AllowOrigins: s.cfg.Realtime.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:       86400,
	}

	notifications := handlers.NewNotificationHandler(s.deps.Dispatcher, s.logger)
	health := handlers.NewHealthHandler(s.deps.Realtime.Connections, s.deps.Cache, s.deps.Transport, s.logger)
	ws := handlers.NewWebSocketHandler(s.deps.Realtime, cors.OriginAllowed, s.logger,
		realtime.WithWriteTimeout(s.cfg.Realtime.WriteTimeout),
		realtime.WithPongWait(s.cfg.Realtime.PongWait),
		realtime.WithMaxMessageSize(s.cfg.Realtime.MaxMessageSize),
	)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(s.logger).Middleware)
	r.Use(chimw.Recoverer)

	r.Get("/health", health.Handle)
	r.Get("/ws", ws.Serve)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(cors))
		r.Options("/notifications", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/notifications", notifications.Send)
	})
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInvalidConfig, "listen on %s", s.server.Addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "transport", s.deps.Transport)
	if err := s.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every realtime connection and
// waits for in-flight cache writes.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.server.Shutdown(ctx)
	// Hijacked websocket connections are not tracked by http.Server.
	rtErr := s.deps.Realtime.Close()

	done := make(chan struct{})
	go func() {
		s.deps.Dispatcher.Wait()
		close(done)
	}()
	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if err := stderrors.Join(httpErr, rtErr, waitErr); err != nil {
		s.logger.Warn("HTTP server shutdown incomplete", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
