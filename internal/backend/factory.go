package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/analytics"
	"fintrack/internal/services"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
	"fintrack/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// The in-memory store is the fallback of every backend, so it is
	// seeded up front.
	mem := memory.New()
	if err := services.SeedCategories(ctx, mem); err != nil {
		return nil, fmt.Errorf("seed memory store: %w", err)
	}

	var s store.Store
	switch config.Type {
	case SQLiteBackend:
		s = f.createSQLiteStore(config, mem)
	case MemoryBackend:
		s = mem
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	var publisher services.Publisher
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without ledger events", "error", err)
		} else {
			amqpClient = client
			publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	b := Assemble(s, services.NewEvents(publisher))

	cleanup := func() error {
		var errs []error
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BackendResult{Backend: b, Cleanup: cleanup}, nil
}

// createSQLiteStore defers the SQLite connection to the first call and
// keeps serving from memory while it is unreachable.
func (f *DefaultFactory) createSQLiteStore(config Config, mem store.Store) store.Store {
	path := config.SQLiteDBPath
	connect := func(ctx context.Context) (store.Store, error) {
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", path,
		"connect_timeout", config.ConnectTimeout.String(),
		"reconnect_interval", config.ReconnectInterval.String())

	return store.NewFallback(connect, mem, store.FallbackConfig{
		RetryInterval:  config.ReconnectInterval,
		ConnectTimeout: config.ConnectTimeout,
		OnConnect:      services.SeedCategories,
		Logger:         f.logger,
	})
}

// Assemble wires the services over s.
func Assemble(s store.Store, events *services.Events, opts ...analytics.Option) *Backend {
	b := &Backend{
		Store:        s,
		Events:       events,
		Transactions: services.NewTransactionLedger(s, events),
		Budgets:      services.NewBudgetLedger(s, events),
		Categories:   services.NewCategoryResolver(s),
	}
	b.Analytics = analytics.New(b.Transactions, b.Budgets, b.Categories, opts...)
	return b
}
