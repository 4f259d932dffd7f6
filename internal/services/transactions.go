package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/store"
)

// Option configures a ledger.
type Option func(*ledgerOptions)

type ledgerOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *ledgerOptions) {
		o.now = now
	}
}

func buildOptions(opts []Option) ledgerOptions {
	o := ledgerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TransactionLedger is the CRUD surface over stored transactions.
type TransactionLedger struct {
	store  store.Store
	events *Events
	now    func() time.Time

	// mu serialises the read-merge-write of Update.
	mu sync.Mutex
}

func NewTransactionLedger(s store.Store, events *Events, opts ...Option) *TransactionLedger {
	o := buildOptions(opts)
	return &TransactionLedger{store: s, events: events, now: o.now}
}

// List returns transactions matching f, newest first. Stored documents that
// no longer decode are skipped.
func (l *TransactionLedger) List(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	filter := store.All()
	if f.Type != "" {
		filter = filter.And("type", string(f.Type))
	}
	if f.Category != "" {
		filter = filter.And("category", f.Category)
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		filter = filter.Between("date", f.From, f.To)
	}

	recs, err := l.store.Find(ctx, store.Transactions, filter, store.Desc("date"))
	if err != nil {
		return nil, storeError("list transactions", err)
	}

	out := make([]core.Transaction, 0, len(recs))
	for _, rec := range recs {
		t, err := TransactionFromRecord(rec)
		if err != nil {
			slog.DebugContext(ctx, "Skipping malformed transaction", "id", rec.ID(), "error", err)
			continue
		}
		if !f.Matches(t) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (l *TransactionLedger) Get(ctx context.Context, id string) (core.Transaction, error) {
	rec, err := l.store.FindOne(ctx, store.Transactions, store.ByID(id))
	if err != nil {
		if errors.Is(err, store.ErrNoRecord) {
			return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
		}
		return core.Transaction{}, storeError("get transaction", err)
	}
	t, err := TransactionFromRecord(rec)
	if err != nil {
		return core.Transaction{}, storeError("decode transaction", err)
	}
	return t, nil
}

// Create validates in, stamps it and stores it.
func (l *TransactionLedger) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	t, err := in.Transaction()
	if err != nil {
		return core.Transaction{}, err
	}
	now := l.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	id, err := l.store.Insert(ctx, store.Transactions, transactionRecord(t))
	if err != nil {
		return core.Transaction{}, storeError("create transaction", err)
	}
	t.ID = id

	slog.InfoContext(ctx, "Transaction created",
		"id", t.ID,
		"type", t.Type,
		"category", t.Category,
		"amount", t.Amount.String())
	l.events.emit(ctx, transactionEvent(amqp.TransactionCreated, t))
	return t, nil
}

// Update merges the set fields of p into the stored transaction. Only those
// fields and updatedAt are written back.
func (l *TransactionLedger) Update(ctx context.Context, id string, p core.TransactionPatch) (core.Transaction, error) {
	l.mu.Lock()
	merged, err := l.updateLocked(ctx, id, p)
	l.mu.Unlock()
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction updated", "id", id)
	l.events.emit(ctx, transactionEvent(amqp.TransactionUpdated, merged))
	return merged, nil
}

func (l *TransactionLedger) updateLocked(ctx context.Context, id string, p core.TransactionPatch) (core.Transaction, error) {
	current, err := l.Get(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	merged, err := p.Apply(current)
	if err != nil {
		return core.Transaction{}, err
	}

	now := l.now().UTC()
	if !now.After(current.UpdatedAt) {
		now = current.UpdatedAt.Add(time.Nanosecond)
	}
	merged.UpdatedAt = now

	n, err := l.store.UpdateOne(ctx, store.Transactions, store.ByID(id), patchRecord(merged, p))
	if err != nil {
		return core.Transaction{}, storeError("update transaction", err)
	}
	if n == 0 {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	return merged, nil
}

func (l *TransactionLedger) Delete(ctx context.Context, id string) error {
	rec, err := l.store.FindOne(ctx, store.Transactions, store.ByID(id))
	if err != nil {
		if errors.Is(err, store.ErrNoRecord) {
			return &core.NotFoundError{Entity: "transaction", ID: id}
		}
		return storeError("get transaction", err)
	}

	n, err := l.store.DeleteOne(ctx, store.Transactions, store.ByID(id))
	if err != nil {
		return storeError("delete transaction", err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: "transaction", ID: id}
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	ev := amqp.NewLedgerEvent(amqp.TransactionDeleted, id, rec.String("category"), 0, 0)
	if t, err := TransactionFromRecord(rec); err == nil {
		ev = transactionEvent(amqp.TransactionDeleted, t)
	}
	l.events.emit(ctx, ev)
	return nil
}

func transactionEvent(kind amqp.EventKind, t core.Transaction) *amqp.LedgerEvent {
	ev := amqp.NewLedgerEvent(kind, t.ID, t.Category, int(t.Date.Month())-1, t.Date.Year())
	ev.Type = string(t.Type)
	ev.Date = t.Date.String()
	return ev
}
