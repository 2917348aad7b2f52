// Package api provides the movewatchd control API: watch management, status,
// the notification journal, the live notification stream and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/movewatch/movewatch/internal/journal"
	"github.com/movewatch/movewatch/internal/metrics"
	"github.com/movewatch/movewatch/internal/ratelimit"
	"github.com/movewatch/movewatch/internal/sse"
	"github.com/movewatch/movewatch/internal/validation"
	"github.com/movewatch/movewatch/internal/watcher"
)

const (
	apiTitle   = "movewatch API"
	apiVersion = "1.0.0"
)

// Watcher is the part of *watcher.Watcher the API drives.
type Watcher interface {
	AddWatch(path string, mask watcher.Op) (int, error)
	RemoveWatch(wd int) bool
	Watches() []watcher.Watch
	Running() bool
	Pending() int
	Err() error
}

// Journal is the part of *journal.Journal the API reads.
type Journal interface {
	Recent(ctx context.Context, q journal.Query) ([]journal.Entry, error)
	Ping(ctx context.Context) error
}

// Options configures the server. Journal, Stream and Metrics are optional;
// their endpoints report the component as unavailable when nil.
type Options struct {
	Watcher Watcher
	Journal Journal
	Stream  *sse.Manager
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// CORSOrigins enables CORS for these origins when non-empty.
	CORSOrigins []string
	// RateLimit caps watch changes per client per minute; 0 disables it.
	RateLimit int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	watcher   Watcher
	journal   Journal
	stream    *sse.Manager
	metrics   *metrics.Metrics
	validator *validation.Validator
	limiter   *ratelimit.KeyedRateLimiter
	router    *chi.Mux
	api       huma.API
	logger    *slog.Logger
}

// NewServer creates the server with all routes configured.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		watcher:   opts.Watcher,
		journal:   opts.Journal,
		stream:    opts.Stream,
		metrics:   opts.Metrics,
		validator: validation.New(),
		router:    chi.NewRouter(),
		logger:    logger,
	}
	if opts.RateLimit > 0 {
		s.limiter = ratelimit.New(float64(opts.RateLimit)/time.Minute.Seconds(), opts.RateLimit)
	}

	s.setupMiddleware(opts.CORSOrigins)

	humaConfig := huma.DefaultConfig(apiTitle, apiVersion)
	humaConfig.Info.Description = "Control API for the movewatch directory watcher."
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerStatusRoutes()
	s.registerWatchRoutes()
	s.registerEventRoutes()
	s.registerStreamRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	if len(origins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.logger))
	}
}

func (s *Server) registerStreamRoutes() {
	if s.stream != nil {
		s.router.Get("/api/v1/stream", sse.NewHandler(s.stream, s.logger.With("component", "sse")).ServeHTTP)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}

// watchesChanged refreshes the watches gauge.
func (s *Server) watchesChanged() {
	if s.metrics != nil {
		s.metrics.Watches(len(s.watcher.Watches()))
	}
}

// emit forwards an event to stream clients when streaming is enabled.
func (s *Server) emit(event sse.Event) {
	if s.stream != nil {
		s.stream.Emit(event)
	}
}
