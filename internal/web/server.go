// Package web provides the HTTP server, JSON API and dashboard for
// ModuleTrack.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
	mw "github.com/JonMunkholm/moduletrack/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	metrics http.Handler
	health  func(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHealthCheck makes /healthz report fn's result, typically a store ping.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

// NewServer creates a Server. A nil cfg uses the defaults.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Defaults()
	}
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	// Pages and plain API calls are bounded by the request timeout. The
	// progress stream and the blocking result call are not.
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
		r.Get("/", s.handleDashboard)
	})

	// Import starts share one budget across the dashboard and the API.
	limitImports := func(next http.Handler) http.Handler { return next }
	if s.cfg.Rate.Enabled {
		limitImports = newRateLimiter(s.cfg.Rate.ImportLimit, time.Minute).middleware
	}

	// Dashboard endpoints. Like the page they are served without an API
	// key; RequireAPIKey guards /api for scripts and the CLI.
	s.router.Route("/ui", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			r.Get("/modules/table", s.handleModuleTable)
			r.Post("/modules", s.handleCreateModule)
			r.Patch("/modules/{moduleNo}", s.handleUpdateModule)
			r.Delete("/modules/{moduleNo}", s.handleDeleteModule)
			r.Post("/modules/{moduleNo}/evaluate", s.handleEvaluateModule)
			r.Get("/export/xlsx", s.handleExportXLSX)
			r.Get("/export/pdf", s.handleExportPDF)
		})
		r.Group(func(r chi.Router) {
			r.Use(limitImports)
			r.Post("/import/column", s.handleImportColumn)
			r.Post("/import/text", s.handleImportText)
			r.Post("/import/file", s.handleImportFile)
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			// Modules
			r.Get("/modules", s.handleListModules)
			r.Post("/modules", s.handleCreateModule)
			r.Post("/modules/delete", s.handleDeleteModules)
			r.Get("/modules/{moduleNo}", s.handleGetModule)
			r.Patch("/modules/{moduleNo}", s.handleUpdateModule)
			r.Delete("/modules/{moduleNo}", s.handleDeleteModule)
			r.Post("/modules/{moduleNo}/field", s.handleUpdateField)
			r.Post("/modules/{moduleNo}/evaluate", s.handleEvaluateModule)

			// Exports
			r.Get("/export/xlsx", s.handleExportXLSX)
			r.Get("/export/pdf", s.handleExportPDF)

			// Import control
			r.Get("/import/status", s.handleImportStatus)
			r.Post("/import/{importID}/cancel", s.handleCancelImport)
		})

		// Import starts are rate limited separately. HTMX callers wait for
		// the result, so these are not under the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(limitImports)
			r.Post("/import/column", s.handleImportColumn)
			r.Post("/import/text", s.handleImportText)
			r.Post("/import/file", s.handleImportFile)
		})

		r.Get("/import/{importID}/progress", s.handleImportProgress)
		r.Get("/import/{importID}/result", s.handleImportResult)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				// htmx is loaded from unpkg; styles are inline.
				w.Header().Set("Content-Security-Policy",
					"default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter is a fixed-window request counter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every window.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if rl.now().Sub(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return rl.rate > 0
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware rate limits by RemoteAddr, which TrustedRealIP has already
// resolved to the client address.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError writes a bare JSON error for failures that happen before a
// handler runs.
func writeError(w http.ResponseWriter, status int, message string) {
	slog.Warn("http error", "status", status, "message", message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
