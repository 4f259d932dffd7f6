package services

import (
	"context"
	"log/slog"
	"sync"

	"fintrack/internal/amqp"
)

// Publisher sends ledger events to the message bus.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Events fans out ledger mutations to in-process hooks and the optional
// message bus. A nil *Events drops everything.
type Events struct {
	publisher Publisher

	mu    sync.RWMutex
	hooks []func(ctx context.Context, ev *amqp.LedgerEvent)
}

// NewEvents returns an emitter. publisher may be nil.
func NewEvents(publisher Publisher) *Events {
	return &Events{publisher: publisher}
}

// OnChange registers fn to run synchronously after every mutation.
func (e *Events) OnChange(fn func(ctx context.Context, ev *amqp.LedgerEvent)) {
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// emit never fails the caller: the mutation is already stored.
func (e *Events) emit(ctx context.Context, ev *amqp.LedgerEvent) {
	if e == nil {
		return
	}
	e.mu.RLock()
	hooks := e.hooks
	e.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, ev)
	}

	if e.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping ledger event", "kind", ev.Kind)
		return
	}
	if err := e.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", ev.Kind,
			"id", ev.ID,
			"error", err)
	}
}
