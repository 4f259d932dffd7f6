package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// DefaultThreshold is the spend percentage that raises a warning.
const DefaultThreshold = 80

// Level grades a budget alert.
type Level string

const (
	LevelWarning  Level = "warning"
	LevelExceeded Level = "exceeded"
)

// BudgetComparer recomputes budget usage for a period.
type BudgetComparer interface {
	BudgetComparison(ctx context.Context, month, year int) ([]core.BudgetComparison, error)
}

// Alert reports a budget at or above the threshold.
type Alert struct {
	Category   string
	Month      int
	Year       int
	Level      Level
	Comparison core.BudgetComparison
}

// AlertWorker watches ledger events and logs budgets running out.
type AlertWorker struct {
	budgets   BudgetComparer
	threshold decimal.Decimal
	logger    *slog.Logger
}

// NewAlertWorker creates a worker warning at threshold percent. Values
// outside 1..100 fall back to DefaultThreshold.
func NewAlertWorker(budgets BudgetComparer, threshold int, logger *slog.Logger) *AlertWorker {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertWorker{
		budgets:   budgets,
		threshold: decimal.NewFromInt(int64(threshold)),
		logger:    logger.With("component", "worker"),
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP
func (w *AlertWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		"kind", ev.Kind,
		"id", ev.ID,
		"category", ev.Category)

	alerts, err := w.Check(ctx, ev)
	if err != nil {
		return fmt.Errorf("check budgets: %w", err)
	}
	for _, a := range alerts {
		w.report(ctx, a)
	}
	return nil
}

// Check returns the alerts raised by ev. Income events and deletions of
// budgets raise none.
func (w *AlertWorker) Check(ctx context.Context, ev *amqp.LedgerEvent) ([]Alert, error) {
	if !affectsSpend(ev) {
		return nil, nil
	}

	comparisons, err := w.budgets.BudgetComparison(ctx, ev.Month, ev.Year)
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	for _, c := range comparisons {
		if ev.Category != "" && c.Category != ev.Category {
			continue
		}
		level, ok := w.grade(c)
		if !ok {
			continue
		}
		alerts = append(alerts, Alert{
			Category:   c.Category,
			Month:      ev.Month,
			Year:       ev.Year,
			Level:      level,
			Comparison: c,
		})
	}
	return alerts, nil
}

func affectsSpend(ev *amqp.LedgerEvent) bool {
	switch ev.Kind {
	case amqp.TransactionCreated, amqp.TransactionUpdated:
		return ev.Type == string(core.Expense)
	case amqp.BudgetUpserted:
		return true
	default:
		return false
	}
}

// grade compares actual spend, not the clamped percentage, so overspend is
// still reported as exceeded.
func (w *AlertWorker) grade(c core.BudgetComparison) (Level, bool) {
	if !c.Budgeted.IsPositive() {
		return "", false
	}
	if c.Actual.GreaterThanOrEqual(c.Budgeted) {
		return LevelExceeded, true
	}
	if c.Percentage.GreaterThanOrEqual(w.threshold) {
		return LevelWarning, true
	}
	return "", false
}

func (w *AlertWorker) report(ctx context.Context, a Alert) {
	attrs := []any{
		"category", a.Category,
		"month", a.Month,
		"year", a.Year,
		"budgeted", a.Comparison.Budgeted.StringFixed(2),
		"actual", a.Comparison.Actual.StringFixed(2),
		"percentage", a.Comparison.Percentage.StringFixed(2),
	}
	if a.Level == LevelExceeded {
		w.logger.ErrorContext(ctx, "Budget exceeded", attrs...)
		return
	}
	w.logger.WarnContext(ctx, "Budget nearly spent", attrs...)
}
