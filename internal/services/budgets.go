package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/store"
)

// BudgetLedger stores one budget per (category, month, year).
type BudgetLedger struct {
	store  store.Store
	events *Events
	now    func() time.Time

	// mu serialises the find-then-write of Upsert.
	mu sync.Mutex
}

func NewBudgetLedger(s store.Store, events *Events, opts ...Option) *BudgetLedger {
	o := buildOptions(opts)
	return &BudgetLedger{store: s, events: events, now: o.now}
}

// List returns budgets in insertion order, narrowed by whichever of month
// and year is set.
func (l *BudgetLedger) List(ctx context.Context, month, year *int) ([]core.Budget, error) {
	filter := store.All()
	if month != nil {
		filter = filter.And("month", *month)
	}
	if year != nil {
		filter = filter.And("year", *year)
	}

	recs, err := l.store.Find(ctx, store.Budgets, filter)
	if err != nil {
		return nil, storeError("list budgets", err)
	}
	out := make([]core.Budget, 0, len(recs))
	for _, rec := range recs {
		b, err := BudgetFromRecord(rec)
		if err != nil {
			slog.DebugContext(ctx, "Skipping malformed budget", "id", rec.ID(), "error", err)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (l *BudgetLedger) Get(ctx context.Context, id string) (core.Budget, error) {
	rec, err := l.store.FindOne(ctx, store.Budgets, store.ByID(id))
	if err != nil {
		if errors.Is(err, store.ErrNoRecord) {
			return core.Budget{}, &core.NotFoundError{Entity: "budget", ID: id}
		}
		return core.Budget{}, storeError("get budget", err)
	}
	b, err := BudgetFromRecord(rec)
	if err != nil {
		return core.Budget{}, storeError("decode budget", err)
	}
	return b, nil
}

// Upsert replaces the amount of the budget with the same natural key, or
// creates it. createdAt survives replacement.
func (l *BudgetLedger) Upsert(ctx context.Context, in core.BudgetInput) (core.Budget, error) {
	b, err := in.Budget()
	if err != nil {
		return core.Budget{}, err
	}
	l.mu.Lock()
	b, err = l.upsertLocked(ctx, b)
	l.mu.Unlock()
	if err != nil {
		return core.Budget{}, err
	}

	l.events.emit(ctx, amqp.NewLedgerEvent(amqp.BudgetUpserted, b.ID, b.Category, b.Month, b.Year))
	return b, nil
}

// upsertLocked writes b under its natural key. An insert rejected by the
// durable unique key index was beaten by another process and is retried
// once as an update.
func (l *BudgetLedger) upsertLocked(ctx context.Context, b core.Budget) (core.Budget, error) {
	key := store.Eq("category", b.Category).And("month", b.Month).And("year", b.Year)

	for attempt := 0; ; attempt++ {
		now := l.now().UTC()
		rec, err := l.store.FindOne(ctx, store.Budgets, key)
		switch {
		case err == nil:
			return l.replace(ctx, rec, b.Amount, now)

		case errors.Is(err, store.ErrNoRecord):
			b.CreatedAt = now
			b.UpdatedAt = now
			id, ierr := l.store.Insert(ctx, store.Budgets, budgetRecord(b))
			if errors.Is(ierr, store.ErrDuplicateID) && attempt == 0 {
				continue
			}
			if ierr != nil {
				return core.Budget{}, storeError("create budget", ierr)
			}
			b.ID = id
			slog.InfoContext(ctx, "Budget created", "id", b.ID, "category", b.Category, "month", b.Month, "year", b.Year)
			return b, nil

		default:
			return core.Budget{}, storeError("find budget", err)
		}
	}
}

func (l *BudgetLedger) replace(ctx context.Context, rec store.Record, amount decimal.Decimal, now time.Time) (core.Budget, error) {
	existing, err := BudgetFromRecord(rec)
	if err != nil {
		return core.Budget{}, storeError("decode budget", err)
	}
	if !now.After(existing.UpdatedAt) {
		now = existing.UpdatedAt.Add(time.Nanosecond)
	}
	existing.Amount = amount
	existing.UpdatedAt = now
	patch := store.Record{
		"amount":    budgetRecord(existing)["amount"],
		"updatedAt": now.Format(time.RFC3339Nano),
	}
	n, err := l.store.UpdateOne(ctx, store.Budgets, store.ByID(existing.ID), patch)
	if err != nil {
		return core.Budget{}, storeError("update budget", err)
	}
	if n == 0 {
		return core.Budget{}, &core.NotFoundError{Entity: "budget", ID: existing.ID}
	}
	slog.InfoContext(ctx, "Budget updated", "id", existing.ID, "category", existing.Category, "month", existing.Month, "year", existing.Year)
	return existing, nil
}

func (l *BudgetLedger) Delete(ctx context.Context, id string) error {
	b, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	n, err := l.store.DeleteOne(ctx, store.Budgets, store.ByID(id))
	if err != nil {
		return storeError("delete budget", err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: "budget", ID: id}
	}
	slog.InfoContext(ctx, "Budget deleted", "id", id)
	l.events.emit(ctx, amqp.NewLedgerEvent(amqp.BudgetDeleted, b.ID, b.Category, b.Month, b.Year))
	return nil
}
