// Package http serves the ledger and analytics JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
)

// TransactionService is the transaction ledger as seen by the handlers.
type TransactionService interface {
	List(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
	Get(ctx context.Context, id string) (core.Transaction, error)
	Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	Update(ctx context.Context, id string, p core.TransactionPatch) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
}

// BudgetService is the budget ledger as seen by the handlers.
type BudgetService interface {
	List(ctx context.Context, month, year *int) ([]core.Budget, error)
	Upsert(ctx context.Context, in core.BudgetInput) (core.Budget, error)
	Delete(ctx context.Context, id string) error
}

// CategoryService lists the category catalog.
type CategoryService interface {
	List(ctx context.Context) ([]core.Category, error)
}

// AnalyticsService computes the derived views.
type AnalyticsService interface {
	CurrentPeriod() (month, year int)
	MonthlyTrend(ctx context.Context, monthsBack int) ([]core.MonthlyExpense, error)
	CategoryBreakdown(ctx context.Context) ([]core.CategoryExpense, error)
	BudgetComparison(ctx context.Context, month, year int) ([]core.BudgetComparison, error)
	Summary(ctx context.Context) (core.Summary, error)
	Dashboard(ctx context.Context, monthsBack, month, year int) (core.Dashboard, error)
}

// StoreStatus reports on the record store behind the services.
type StoreStatus interface {
	Ping(ctx context.Context) error
	Kind() string
}

// ChangeNotifier calls back after every ledger mutation.
type ChangeNotifier interface {
	OnChange(fn func(ctx context.Context, ev *amqp.LedgerEvent))
}

// Deps are the services the server routes to.
type Deps struct {
	Transactions TransactionService
	Budgets      BudgetService
	Categories   CategoryService
	Analytics    AnalyticsService
	Store        StoreStatus
	Changes      ChangeNotifier
}

// Options tune the server. Zero values pick defaults.
type Options struct {
	RateLimitPerMinute int
	CacheTTL           time.Duration
	CacheSize          int
	Logger             *applog.Logger
}

const (
	defaultCacheTTL  = 30 * time.Second
	defaultCacheSize = 256
	readyTimeout     = 2 * time.Second
)

// Server is the API server with its middleware state.
type Server struct {
	http.Server

	deps   Deps
	logger *applog.Logger

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector

	analyticsCache *cache.LRUCache[any]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	s := &Server{
		deps:           deps,
		logger:         opts.Logger.WithComponent(applog.ComponentHTTP),
		limiter:        ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:       security.NewDetector(),
		analyticsCache: cache.NewLRUCache[any](opts.CacheSize, opts.CacheTTL),
		cacheManager:   cache.NewManager(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, s.logger)

	s.cacheManager.Register(s.analyticsCache)
	s.cacheManager.StartCleanup(opts.CacheTTL * 2)
	if deps.Changes != nil {
		deps.Changes.OnChange(func(ctx context.Context, ev *amqp.LedgerEvent) {
			s.cacheManager.InvalidateAll()
			s.logger.DebugContext(ctx, "Analytics cache invalidated", "event", string(ev.Kind))
		})
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited,
		http.MethodPost, http.MethodPut, http.MethodDelete)(handler)
	handler = applog.Middleware(s.logger, trace.RequestID)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = s.detector.Middleware(s.logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions", s.handleUpdateTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions", s.handleDeleteTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)

	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /api/budgets", s.handleUpsertBudget)
	mux.HandleFunc("DELETE /api/budgets", s.handleDeleteBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	mux.HandleFunc("GET /api/analytics", s.handleAnalyticsIndex)
	mux.HandleFunc("GET /api/analytics/monthly", s.handleMonthly)
	mux.HandleFunc("GET /api/analytics/categories", s.handleCategoryBreakdown)
	mux.HandleFunc("GET /api/analytics/budget-comparison", s.handleBudgetComparison)
	mux.HandleFunc("GET /api/analytics/summary", s.handleSummary)
	mux.HandleFunc("GET /api/analytics/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Rate limit exceeded. Please try again later."})
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "backend": s.deps.Store.Kind()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "backend": s.deps.Store.Kind()})
}

type metricsResponse struct {
	HTTP      trace.Metrics             `json:"http"`
	RateLimit ratelimit.Metrics         `json:"rateLimit"`
	Security  security.DetectionMetrics `json:"security"`
	Cache     map[string]int            `json:"cache"`
	Backend   string                    `json:"backend,omitempty"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{
		HTTP:      s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
		Cache:     map[string]int{"analyticsEntries": s.analyticsCache.Size()},
	}
	if s.deps.Store != nil {
		resp.Backend = s.deps.Store.Kind()
	}
	writeJSON(w, http.StatusOK, resp)
}
