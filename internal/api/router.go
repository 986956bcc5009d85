package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"humanoid-referee/internal/archive"
	"humanoid-referee/internal/referee"
)

// DecisionSource provides the latest referee decision. Implemented by
// referee.DecisionFeed.
type DecisionSource interface {
	// Latest returns the most recent decision, nil before the first tick
	Latest() *referee.Decision
	// Updated is signalled after each publish
	Updated() <-chan struct{}
}

// EventSource provides the recent rule events. Implemented by
// referee.Journal.
type EventSource interface {
	Recent(limit int) []referee.Event
}

// MatchStore provides archived matches. Implemented by archive.Archive.
type MatchStore interface {
	Matches(ctx context.Context, limit int) ([]archive.MatchSummary, error)
	Events(ctx context.Context, matchID, eventType string) ([]archive.StoredEvent, error)
}

// FieldRenderer draws decisions as PNG.
type FieldRenderer interface {
	EncodePNG(w io.Writer, d *referee.Decision) error
}

// RouterConfig contains all dependencies needed to construct the HTTP
// router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Decisions: feed,
//	    Events:    journal,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000,
//	        Burst:             1000,
//	    },
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Decisions is the referee decision feed (required)
	Decisions DecisionSource

	// Events is the rule event journal (required)
	Events EventSource

	// Archive is the match archive. Archive routes answer 404 without it.
	Archive MatchStore

	// Renderer draws /api/field.png. The route answers 404 without it.
	Renderer FieldRenderer

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil. If both are
	// nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is the list of allowed CORS origins. If nil, only
	// loopback origins are allowed.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware.
	DisableLogging bool

	Logger zerolog.Logger
}

// routerHandlers holds the dependencies of the route handlers.
type routerHandlers struct {
	decisions DecisionSource
	events    EventSource
	archive   MatchStore
	renderer  *lockedRenderer
	log       zerolog.Logger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter has no side effects besides the rate limiter cleanup
// goroutine: no listeners are opened, so it is safe to use with
// httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(requestLogger(cfg.Logger))
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	h := &routerHandlers{
		decisions: cfg.Decisions,
		events:    cfg.Events,
		archive:   cfg.Archive,
		log:       cfg.Logger,
	}
	if cfg.Renderer != nil {
		h.renderer = &lockedRenderer{r: cfg.Renderer}
	}

	r.Route("/api", func(r chi.Router) {
		// Live match
		r.Get("/state", h.handleGetState)
		r.Get("/score", h.handleGetScore)
		r.Get("/events", h.handleGetEvents)
		r.Get("/shootout", h.handleGetShootout)
		r.Get("/field.png", h.handleGetField)

		// Archive
		r.Get("/matches", h.handleListMatches)
		r.Get("/matches/{id}/events", h.handleMatchEvents)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/state", http.StatusFound)
	})

	return r
}

// requestLogger logs each request through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("ip", GetClientIP(r)).
				Msg("http request")
		})
	}
}

// requestMetrics records latency per route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
