package http

import (
	"context"
	"fmt"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

const defaultMonthsBack = 12

// cached serves key from the analytics cache, computing it with load on a
// miss. Concurrent misses share one load.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, key, generic string, load func(ctx context.Context) (any, error)) {
	v, err := s.analyticsCache.GetOrLoad(r.Context(), key, load)
	if err != nil {
		writeError(w, r, err, applog.OpAnalyze, generic)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// period reads month and year, defaulting to the current period.
func (s *Server) period(r *http.Request) (month, year int, err error) {
	curMonth, curYear := s.deps.Analytics.CurrentPeriod()
	q := r.URL.Query()
	if month, err = queryIntDefault(q, "month", curMonth); err != nil {
		return 0, 0, err
	}
	if year, err = queryIntDefault(q, "year", curYear); err != nil {
		return 0, 0, err
	}
	if month < 0 || month > 11 {
		return 0, 0, &core.ValidationError{Field: "month", Message: "must be between 0 and 11", Err: core.ErrInvalidMonth}
	}
	return month, year, nil
}

func (s *Server) handleAnalyticsIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Analytics API endpoint",
		"endpoints": map[string]string{
			"monthly":          "/api/analytics/monthly",
			"categories":       "/api/analytics/categories",
			"budgetComparison": "/api/analytics/budget-comparison",
			"summary":          "/api/analytics/summary",
			"dashboard":        "/api/analytics/dashboard",
		},
	})
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	const generic = "Failed to fetch monthly data"
	months, err := queryIntDefault(r.URL.Query(), "months", defaultMonthsBack)
	if err != nil {
		writeError(w, r, err, applog.OpAnalyze, generic)
		return
	}
	s.cached(w, r, fmt.Sprintf("monthly:%d", months), generic, func(ctx context.Context) (any, error) {
		return s.deps.Analytics.MonthlyTrend(ctx, months)
	})
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, "categories", "Failed to fetch category data", func(ctx context.Context) (any, error) {
		return s.deps.Analytics.CategoryBreakdown(ctx)
	})
}

func (s *Server) handleBudgetComparison(w http.ResponseWriter, r *http.Request) {
	const generic = "Failed to fetch budget comparison"
	month, year, err := s.period(r)
	if err != nil {
		writeError(w, r, err, applog.OpAnalyze, generic)
		return
	}
	s.cached(w, r, fmt.Sprintf("budget-comparison:%d-%d", year, month), generic, func(ctx context.Context) (any, error) {
		return s.deps.Analytics.BudgetComparison(ctx, month, year)
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, "summary", "Failed to fetch summary", func(ctx context.Context) (any, error) {
		return s.deps.Analytics.Summary(ctx)
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	const generic = "Failed to fetch dashboard"
	months, err := queryIntDefault(r.URL.Query(), "months", defaultMonthsBack)
	if err != nil {
		writeError(w, r, err, applog.OpAnalyze, generic)
		return
	}
	month, year, err := s.period(r)
	if err != nil {
		writeError(w, r, err, applog.OpAnalyze, generic)
		return
	}
	s.cached(w, r, fmt.Sprintf("dashboard:%d:%d-%d", months, year, month), generic, func(ctx context.Context) (any, error) {
		return s.deps.Analytics.Dashboard(ctx, months, month, year)
	})
}
