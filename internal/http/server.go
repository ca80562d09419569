package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"mython/internal/aggregate"
	"mython/internal/cache"
	"mython/internal/ledger"
	"mython/internal/log"
	"mython/internal/middleware/ratelimit"
	"mython/internal/middleware/security"
	"mython/internal/middleware/trace"
	"mython/internal/services"
	"mython/internal/session"
)

const (
	dashboardCacheSize = 64
	dashboardCacheTTL  = 5 * time.Minute
	cacheSweepInterval = 10 * time.Minute
	maxBodyBytes       = 64 << 10
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server

	ledger   *services.LedgerService
	sessions *session.Manager
	logger   *log.Logger
	now      func() time.Time

	detector    *security.Detector
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware
	caches      *cache.Manager

	// Dashboards keyed by month and day; purged on every ledger mutation.
	dashboards *cache.LRUCache[aggregate.Dashboard]
	// dashboardGen counts ledger mutations; bumped before each purge.
	dashboardGen atomic.Uint64
	unsubscribe  func()
	// built runs between computing a dashboard and caching it. Tests only.
	built func()

	readiness map[string]ReadinessCheck
	started   time.Time

	shutdownOnce sync.Once
}

type Option func(*Server)

// WithClock replaces the time source used for default months and the
// dashboard year.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithReadinessCheck adds a named dependency probe to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.readiness[name] = check }
}

// WithRateLimit overrides the limit applied to mutating requests.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.rateLimiter.Stop()
		s.rateLimiter = ratelimit.NewLimiter(cfg)
	}
}

// NewServer wires routes and middleware around the ledger service and
// session manager, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService, sessions *session.Manager, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		ledger:      svc,
		sessions:    sessions,
		logger:      logger,
		now:         time.Now,
		detector:    security.NewDetector(logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		caches:      cache.NewManager(logger),
		dashboards:  cache.NewLRUCache[aggregate.Dashboard](dashboardCacheSize, dashboardCacheTTL),
		readiness:   make(map[string]ReadinessCheck),
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	s.unsubscribe = svc.Store().Subscribe(func(ledger.Event) {
		s.dashboardGen.Add(1)
		s.dashboards.Purge()
	})

	s.caches.Register(s.dashboards)
	s.caches.Register(sessions.Cache())
	s.caches.StartCleanup(cacheSweepInterval)

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.Handle("POST /api/logout", s.requireSession(s.handleLogout))

	mux.Handle("GET /api/transactions", s.requireSession(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.requireSession(s.handleCreateTransaction))
	mux.Handle("POST /api/transactions/reorder", s.requireSession(s.handleReorderTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.requireSession(s.handleDeleteTransaction))

	mux.Handle("GET /api/dashboard", s.requireSession(s.handleDashboard))
	mux.Handle("GET /api/months", s.requireSession(s.handleMonths))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	}, http.MethodPost, http.MethodDelete)

	// Outermost first: trace, probe detection, headers, rate limit.
	return chain(mux, s.tracer.Middleware, s.detector.Middleware, headers.Middleware, limit)
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Shutdown gracefully shuts down the server and its background routines.
// The ledger service is owned by the caller and is not closed here.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.caches.Stop()
		s.rateLimiter.Stop()
		if err := s.Server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("http shutdown: %w", err)
		}
	})
	return shutdownErr
}
