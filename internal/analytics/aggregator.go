// Package analytics derives read-only views from the transaction and budget
// ledgers: monthly expense trend, category breakdown, budget against actual
// spend and the all-time summary.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// MaxMonthsBack bounds MonthlyTrend.
const MaxMonthsBack = 120

// MonthLabel formats trend buckets.
const MonthLabel = "Jan 2006"

type TransactionLister interface {
	List(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
}

type BudgetLister interface {
	List(ctx context.Context, month, year *int) ([]core.Budget, error)
}

type CategoryIndexer interface {
	Index(ctx context.Context) (core.CategoryIndex, error)
}

// Aggregator computes every analytics view on demand. It holds no state
// beyond its dependencies.
type Aggregator struct {
	transactions TransactionLister
	budgets      BudgetLister
	categories   CategoryIndexer
	now          func() time.Time
}

type Option func(*Aggregator)

// WithClock fixes the notion of the current month.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func New(transactions TransactionLister, budgets BudgetLister, categories CategoryIndexer, opts ...Option) *Aggregator {
	a := &Aggregator{
		transactions: transactions,
		budgets:      budgets,
		categories:   categories,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CurrentPeriod returns the zero based month and the year of the clock.
func (a *Aggregator) CurrentPeriod() (month, year int) {
	now := a.now()
	return int(now.Month()) - 1, now.Year()
}

type monthKey struct {
	year  int
	month time.Month
}

// MonthlyTrend returns expense totals for the last monthsBack calendar
// months ending with the current one, oldest first. Empty months are
// reported as zero.
func (a *Aggregator) MonthlyTrend(ctx context.Context, monthsBack int) ([]core.MonthlyExpense, error) {
	if monthsBack <= 0 {
		return nil, &core.ValidationError{Field: "months", Message: "must be a positive number"}
	}
	if monthsBack > MaxMonthsBack {
		return nil, &core.ValidationError{Field: "months", Message: fmt.Sprintf("must be at most %d", MaxMonthsBack)}
	}

	now := a.now()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	first := current.AddDate(0, -(monthsBack - 1), 0)

	txs, err := a.transactions.List(ctx, core.TransactionFilter{
		Type: core.Expense,
		From: core.DateOf(first),
		To:   core.EndOfMonth(current.Year(), int(current.Month())-1),
	})
	if err != nil {
		return nil, fmt.Errorf("monthly trend: %w", err)
	}

	totals := make(map[monthKey]decimal.Decimal, monthsBack)
	for _, t := range txs {
		if !usable(ctx, t) {
			continue
		}
		k := monthKey{year: t.Date.Year(), month: t.Date.Month()}
		totals[k] = totals[k].Add(t.Amount)
	}

	out := make([]core.MonthlyExpense, 0, monthsBack)
	for i := 0; i < monthsBack; i++ {
		m := first.AddDate(0, i, 0)
		out = append(out, core.MonthlyExpense{
			Month:  m.Format(MonthLabel),
			Amount: totals[monthKey{year: m.Year(), month: m.Month()}],
		})
	}
	return out, nil
}

// CategoryBreakdown totals all expenses per category. Entries follow the
// first appearance of each category in the newest-first ledger listing.
func (a *Aggregator) CategoryBreakdown(ctx context.Context) ([]core.CategoryExpense, error) {
	txs, err := a.transactions.List(ctx, core.TransactionFilter{Type: core.Expense})
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	idx, err := a.categories.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}

	var order []string
	totals := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if !usable(ctx, t) {
			continue
		}
		if _, seen := totals[t.Category]; !seen {
			order = append(order, t.Category)
		}
		totals[t.Category] = totals[t.Category].Add(t.Amount)
	}

	out := make([]core.CategoryExpense, 0, len(order))
	for _, id := range order {
		res := idx.Resolve(id)
		out = append(out, core.CategoryExpense{
			Category: res.Name,
			Amount:   totals[id],
			Color:    res.Color,
		})
	}
	return out, nil
}

// BudgetComparison sets each budget of the period against the expenses in
// its category. Categories with spend but no budget are not reported.
func (a *Aggregator) BudgetComparison(ctx context.Context, month, year int) ([]core.BudgetComparison, error) {
	if month < 0 || month > 11 {
		return nil, &core.ValidationError{Field: "month", Message: "must be between 0 and 11", Err: core.ErrInvalidMonth}
	}

	budgets, err := a.budgets.List(ctx, &month, &year)
	if err != nil {
		return nil, fmt.Errorf("budget comparison: %w", err)
	}
	txs, err := a.transactions.List(ctx, core.TransactionFilter{
		Type: core.Expense,
		From: core.StartOfMonth(year, month),
		To:   core.EndOfMonth(year, month),
	})
	if err != nil {
		return nil, fmt.Errorf("budget comparison: %w", err)
	}

	spent := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if !usable(ctx, t) {
			continue
		}
		spent[t.Category] = spent[t.Category].Add(t.Amount)
	}

	out := make([]core.BudgetComparison, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, core.NewBudgetComparison(b.Category, b.Amount, spent[b.Category]))
	}
	return out, nil
}

// Summary totals every transaction in the ledger.
func (a *Aggregator) Summary(ctx context.Context) (core.Summary, error) {
	txs, err := a.transactions.List(ctx, core.TransactionFilter{})
	if err != nil {
		return core.Summary{}, fmt.Errorf("summary: %w", err)
	}

	var s core.Summary
	for _, t := range txs {
		if !usable(ctx, t) {
			continue
		}
		switch t.Type {
		case core.Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case core.Expense:
			s.TotalExpenses = s.TotalExpenses.Add(t.Amount)
		}
		s.TransactionCount++
	}
	s.Net = s.TotalIncome.Sub(s.TotalExpenses)
	return s, nil
}

// Dashboard computes every view for one period concurrently.
func (a *Aggregator) Dashboard(ctx context.Context, monthsBack, month, year int) (core.Dashboard, error) {
	d := core.Dashboard{Month: month, Year: year}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Summary, err = a.Summary(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Monthly, err = a.MonthlyTrend(gctx, monthsBack)
		return err
	})
	g.Go(func() error {
		var err error
		d.Categories, err = a.CategoryBreakdown(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Budgets, err = a.BudgetComparison(gctx, month, year)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Dashboard{}, err
	}
	return d, nil
}

// usable drops rows that cannot contribute to a total.
func usable(ctx context.Context, t core.Transaction) bool {
	if !t.Amount.IsPositive() {
		slog.DebugContext(ctx, "Skipping transaction with non-positive amount",
			applog.FieldComponent, applog.ComponentAnalytics,
			applog.FieldTransactionID, t.ID)
		return false
	}
	return true
}
