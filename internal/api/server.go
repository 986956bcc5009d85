package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"humanoid-referee/internal/config"
)

// Dependencies are the collaborators served by the API.
type Dependencies struct {
	Decisions DecisionSource
	Events    EventSource
	Archive   MatchStore    // optional
	Renderer  FieldRenderer // optional
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	cfg         config.ServerConfig
	deps        Dependencies
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	log         zerolog.Logger
}

// NewServer creates the API server.
//
// IMPORTANT: Background workers do NOT start until Run() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(cfg config.ServerConfig, deps Dependencies, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()
	s := &Server{
		cfg:         cfg,
		deps:        deps,
		wsHub:       NewWebSocketHub(NewOriginPolicy(cfg.AllowedOrigins), logger),
		rateLimiter: NewIPRateLimiter(RateLimitFromServer(cfg)),
		log:         logger,
	}

	s.router = NewRouter(RouterConfig{
		Decisions:   deps.Decisions,
		Events:      deps.Events,
		Archive:     deps.Archive,
		Renderer:    deps.Renderer,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.AllowedOrigins,
		Logger:      logger,
	})

	// WebSocket routes need the hub instance, so they are not part of
	// the NewRouter factory.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// Run serves HTTP and the websocket workers until ctx is cancelled, then
// shuts down gracefully.
//
// Call this method only once.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.wsHub.Run(hubCtx)
	go s.wsHub.StreamDecisions(hubCtx, s.deps.Decisions, s.deps.Events)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	err := srv.Shutdown(shutdownCtx)
	s.Stop()
	s.log.Info().Msg("api server stopped")
	return err
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Run().
//
// Example:
//
//	server := api.NewServer(cfg, deps, logger)
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the websocket hub for stats.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Stop releases the rate limiter worker.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// Stats reports API counters for /debug/stats.
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"websocketClients": s.wsHub.ClientCount(),
		"rateLimiter":      s.rateLimiter.GetStats(),
	}
}
