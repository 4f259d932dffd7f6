package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/backend"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store/memory"
)

func fixedNow() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) }

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	mem := memory.New()
	if err := services.SeedCategories(context.Background(), mem); err != nil {
		t.Fatalf("seed: %v", err)
	}
	b := backend.Assemble(mem, services.NewEvents(nil), analytics.WithClock(fixedNow))
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Output: io.Discard})
	}
	s := NewServer(":0", Deps{
		Transactions: b.Transactions,
		Budgets:      b.Budgets,
		Categories:   b.Categories,
		Analytics:    b.Analytics,
		Store:        mem,
		Changes:      b.Events,
	}, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestTransactionLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/transactions",
		`{"amount": 42.5, "description": "groceries", "category": "food", "date": "2025-03-02", "type": "expense"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	created := decode[core.Transaction](t, rec)
	if created.ID == "" || created.Amount.String() != "42.5" {
		t.Fatalf("created = %+v", created)
	}
	if rec.Header().Get("X-Request-ID") == "" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("middleware headers missing: %v", rec.Header())
	}

	rec = do(t, s, http.MethodGet, "/api/transactions/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	rec = do(t, s, http.MethodPut, "/api/transactions/"+created.ID, `{"description": "weekly shop"}`)
	if rec.Code != http.StatusOK || decode[core.Transaction](t, rec).Description != "weekly shop" {
		t.Fatalf("update by path: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodPut, "/api/transactions", `{"_id": "`+created.ID+`", "amount": 40}`)
	if rec.Code != http.StatusOK || decode[core.Transaction](t, rec).Amount.String() != "40" {
		t.Fatalf("update by body id: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/transactions?type=expense&category=food", "")
	if got := decode[[]core.Transaction](t, rec); len(got) != 1 {
		t.Fatalf("list = %v", got)
	}
	rec = do(t, s, http.MethodGet, "/api/transactions?type=income", "")
	if got := decode[[]core.Transaction](t, rec); len(got) != 0 {
		t.Fatalf("income list = %v", got)
	}

	rec = do(t, s, http.MethodDelete, "/api/transactions?id="+created.ID, "")
	if rec.Code != http.StatusOK || decode[map[string]string](t, rec)["message"] != "Transaction deleted successfully" {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/transactions/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
	rec = do(t, s, http.MethodDelete, "/api/transactions/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name      string
		method    string
		target    string
		body      string
		wantField string
	}{
		{"missing amount", http.MethodPost, "/api/transactions", `{"description": "x", "category": "food", "date": "2025-03-02", "type": "expense"}`, "amount"},
		{"negative amount", http.MethodPost, "/api/transactions", `{"amount": -1, "description": "x", "category": "food", "date": "2025-03-02", "type": "expense"}`, "amount"},
		{"bad type", http.MethodPost, "/api/transactions", `{"amount": 1, "description": "x", "category": "food", "date": "2025-03-02", "type": "gift"}`, "type"},
		{"malformed body", http.MethodPost, "/api/transactions", `{"amount": `, "body"},
		{"empty body", http.MethodPost, "/api/budgets", "", "body"},
		{"update without id", http.MethodPut, "/api/transactions", `{"amount": 3}`, "id"},
		{"delete without id", http.MethodDelete, "/api/transactions", "", "id"},
		{"bad filter type", http.MethodGet, "/api/transactions?type=gift", "", "type"},
		{"bad filter date", http.MethodGet, "/api/transactions?from=03/02/2025", "", "from"},
		{"bad month query", http.MethodGet, "/api/budgets?month=march", "", "month"},
		{"month out of range", http.MethodGet, "/api/analytics/budget-comparison?month=12", "", "month"},
		{"zero months", http.MethodGet, "/api/analytics/monthly?months=0", "", "months"},
		{"too many months", http.MethodGet, "/api/analytics/monthly?months=200", "", "months"},
		{"budget without month", http.MethodPost, "/api/budgets", `{"category": "food", "amount": 10, "year": 2025}`, "month"},
		{"budget zero amount", http.MethodPost, "/api/budgets", `{"category": "food", "amount": 0, "month": 1, "year": 2025}`, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if got := decode[errorResponse](t, rec); got.Field != tt.wantField {
				t.Fatalf("field = %q, want %q (%s)", got.Field, tt.wantField, got.Error)
			}
		})
	}
}

func TestBudgetsEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/budgets", `{"category": "food", "amount": 100, "month": 2, "year": 2025}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: %d %s", rec.Code, rec.Body.String())
	}
	first := decode[core.Budget](t, rec)

	rec = do(t, s, http.MethodPost, "/api/budgets", `{"category": "food", "amount": 150, "month": 2, "year": 2025}`)
	second := decode[core.Budget](t, rec)
	if second.ID != first.ID || second.Amount.String() != "150" {
		t.Fatalf("upsert did not replace: %+v vs %+v", first, second)
	}
	do(t, s, http.MethodPost, "/api/budgets", `{"category": "bills", "amount": 80, "month": 3, "year": 2025}`)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?month=2&year=2025", 1},
		{"?month=3", 1},
		{"?year=2024", 0},
	}
	for _, tt := range tests {
		rec := do(t, s, http.MethodGet, "/api/budgets"+tt.query, "")
		if got := decode[[]core.Budget](t, rec); len(got) != tt.want {
			t.Errorf("GET /api/budgets%s = %d budgets, want %d", tt.query, len(got), tt.want)
		}
	}

	rec = do(t, s, http.MethodDelete, "/api/budgets/"+first.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = do(t, s, http.MethodDelete, "/api/budgets/"+first.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodGet, "/api/categories", "")
	cats := decode[[]core.Category](t, rec)
	if len(cats) != len(core.DefaultCategories()) {
		t.Fatalf("categories = %d", len(cats))
	}
}

func TestAnalyticsCacheInvalidatedOnMutation(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/api/analytics/summary", "")
	if got := decode[core.Summary](t, rec); got.TransactionCount != 0 {
		t.Fatalf("initial summary = %+v", got)
	}

	do(t, s, http.MethodPost, "/api/transactions",
		`{"amount": 10, "description": "lunch", "category": "food", "date": "2025-03-10", "type": "expense"}`)
	do(t, s, http.MethodPost, "/api/budgets", `{"category": "food", "amount": 40, "month": 2, "year": 2025}`)

	rec = do(t, s, http.MethodGet, "/api/analytics/summary", "")
	if got := decode[core.Summary](t, rec); got.TransactionCount != 1 || got.TotalExpenses.String() != "10" {
		t.Fatalf("summary after create = %+v", got)
	}

	rec = do(t, s, http.MethodGet, "/api/analytics/budget-comparison", "")
	cmp := decode[[]core.BudgetComparison](t, rec)
	if len(cmp) != 1 || cmp[0].Percentage.String() != "25" || cmp[0].Remaining.String() != "30" {
		t.Fatalf("comparison for current period = %+v", cmp)
	}

	rec = do(t, s, http.MethodGet, "/api/analytics/monthly?months=3", "")
	monthly := decode[[]core.MonthlyExpense](t, rec)
	if len(monthly) != 3 || monthly[2].Month != "Mar 2025" || monthly[2].Amount.String() != "10" {
		t.Fatalf("monthly = %+v", monthly)
	}

	rec = do(t, s, http.MethodGet, "/api/analytics/dashboard", "")
	dash := decode[core.Dashboard](t, rec)
	if dash.Month != 2 || dash.Year != 2025 || len(dash.Monthly) != defaultMonthsBack {
		t.Fatalf("dashboard = %+v", dash)
	}

	rec = do(t, s, http.MethodGet, "/api/analytics", "")
	if !strings.Contains(rec.Body.String(), "/api/analytics/budget-comparison") {
		t.Fatalf("index = %s", rec.Body.String())
	}
}

type failingTransactions struct{ TransactionService }

func (failingTransactions) List(context.Context, core.TransactionFilter) ([]core.Transaction, error) {
	return nil, &core.UnexpectedError{Op: "list transactions", Err: errors.New("disk on fire")}
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	var logs bytes.Buffer
	s := NewServer(":0", Deps{Transactions: failingTransactions{}},
		Options{Logger: applog.New(applog.Config{Format: "json", Output: &logs})})
	defer s.Shutdown(context.Background())

	rec := do(t, s, http.MethodGet, "/api/transactions", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
	if got := decode[errorResponse](t, rec).Error; got != "Failed to fetch transactions" {
		t.Fatalf("error = %q", got)
	}
	if !strings.Contains(logs.String(), "disk on fire") {
		t.Fatalf("detail not logged: %s", logs.String())
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	s := newTestServer(t, Options{RateLimitPerMinute: 1})

	body := `{"amount": 1, "description": "x", "category": "food", "date": "2025-03-02", "type": "expense"}`
	if rec := do(t, s, http.MethodPost, "/api/transactions", body); rec.Code != http.StatusCreated {
		t.Fatalf("first post: %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/transactions", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second post: %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/transactions", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads are not limited: %d", rec.Code)
	}
}

func TestOpsEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})

	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	rec := do(t, s, http.MethodGet, "/readyz", "")
	if got := decode[map[string]string](t, rec); rec.Code != http.StatusOK || got["backend"] != "memory" {
		t.Fatalf("readyz: %d %v", rec.Code, got)
	}
	rec = do(t, s, http.MethodGet, "/metrics", "")
	m := decode[metricsResponse](t, rec)
	if m.HTTP.TotalRequests != 2 || m.Backend != "memory" {
		t.Fatalf("metrics = %+v", m)
	}
}
