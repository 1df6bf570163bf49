// Package server assembles the HTTP + WebSocket API: the history REST
// endpoints, the health check, and the /live streaming endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"depthcast/internal/server/handler"
	"depthcast/internal/server/middleware"
	"depthcast/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	ListenAddr     string
	RequestTimeout time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	History *handler.HistoryHandler
}

// Server is the client-facing HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. REST routes are
// bounded by the request timeout; /live is exempt because sessions are
// long-lived.
func NewServer(cfg Config, handlers Handlers, live *ws.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", restTimeout(cfg.RequestTimeout, handlers.Health.HealthCheck))
	mux.Handle("GET /history/{ticker}", restTimeout(cfg.RequestTimeout, handlers.History.GetHistory))
	mux.Handle("GET /snapshot/{ticker}/{ts}", restTimeout(cfg.RequestTimeout, handlers.History.GetSnapshot))
	mux.HandleFunc("GET /live", live.HandleLive)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(nil)(h)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h,
		// No global write timeout: /live connections live for hours.
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// restTimeout bounds a REST handler's total response time.
func restTimeout(d time.Duration, h http.HandlerFunc) http.Handler {
	return http.TimeoutHandler(h, d, `{"error":"request timeout"}`)
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline. Hijacked /live connections
// are closed by their sessions when the root context is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
