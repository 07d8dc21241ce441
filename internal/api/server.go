// Package api provides the HTTP server for the library GraphQL API.
package api

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/library-server/internal/auth"
	"github.com/listenupapp/library-server/internal/graph"
	"github.com/listenupapp/library-server/internal/loader"
	"github.com/listenupapp/library-server/internal/logger"
	"github.com/listenupapp/library-server/internal/ratelimit"
	"github.com/listenupapp/library-server/internal/resolver"
	"github.com/listenupapp/library-server/internal/store"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// heartbeatInterval is how often an idle subscription stream is pinged.
const heartbeatInterval = 30 * time.Second

// Deps holds what the server needs to serve requests.
type Deps struct {
	Store    store.Store
	Executor *graph.Executor
	Events   *resolver.BookEvents
	Tokens   *auth.TokenService
	Limiter  *ratelimit.KeyedRateLimiter // nil disables rate limiting
	Logger   *logger.Logger

	AllowedOrigins []string
	TrustedProxies []netip.Prefix
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store   store.Store
	exec    *graph.Executor
	events  *resolver.BookEvents
	tokens  *auth.TokenService
	limiter *ratelimit.KeyedRateLimiter
	logger  *logger.Logger
	origins []string
	proxies []netip.Prefix

	heartbeat time.Duration

	router chi.Router
	api    huma.API
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		store:     d.Store,
		exec:      d.Executor,
		events:    d.Events,
		tokens:    d.Tokens,
		limiter:   d.Limiter,
		logger:    d.Logger,
		origins:   d.AllowedOrigins,
		proxies:   d.TrustedProxies,
		heartbeat: heartbeatInterval,
		router:    chi.NewRouter(),
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Library API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerGraphQLRoutes()
	s.registerStreamRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(requestID)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", headerRequestID},
		ExposedHeaders: []string{headerRequestID},
		MaxAge:         300,
	}))
	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.proxies, s.logger.Logger))
	}
	s.router.Use(authMiddleware(s.tokens, s.store, s.logger.Logger))
	s.router.Use(loader.Middleware(s.store, s.logger.Logger))
}

// slogger returns the request-scoped slog logger.
func (s *Server) slogger(r *http.Request) *slog.Logger {
	return logger.FromContext(r.Context(), s.logger).Logger
}
