package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/core"
)

// Connector opens the durable backend.
type Connector func(ctx context.Context) (Store, error)

// Fallback routes calls to a lazily connected durable store and falls back
// to an in-memory store while the durable one is unreachable. Connection
// failures are logged, never returned; argument errors pass through.
type Fallback struct {
	connect   Connector
	onConnect func(ctx context.Context, s Store) error
	memory    Store
	logger    *slog.Logger
	retryWait time.Duration
	timeout   time.Duration
	now       func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	durable   Store
	downUntil time.Time
}

var _ Store = (*Fallback)(nil)

// FallbackConfig tunes reconnection.
type FallbackConfig struct {
	// RetryInterval is how long to stay on memory after a failure.
	RetryInterval time.Duration
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
	// OnConnect runs against every freshly connected durable store before
	// it serves calls. A failure counts as a failed connection.
	OnConnect func(ctx context.Context, s Store) error
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewFallback wraps connect and memory. Nothing is dialled until first use.
func NewFallback(connect Connector, memory Store, cfg FallbackConfig) *Fallback {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &Fallback{
		connect:   connect,
		onConnect: cfg.OnConnect,
		memory:    memory,
		logger:    cfg.Logger.With("component", "storage"),
		retryWait: cfg.RetryInterval,
		timeout:   cfg.ConnectTimeout,
		now:       cfg.Now,
	}
}

// Kind reports the backend currently serving calls.
func (f *Fallback) Kind() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.durable != nil {
		return f.durable.Kind()
	}
	return f.memory.Kind()
}

// Durable reports whether the durable backend is connected.
func (f *Fallback) Durable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.durable != nil
}

func (f *Fallback) acquire(ctx context.Context) Store {
	f.mu.Lock()
	if f.durable != nil {
		s := f.durable
		f.mu.Unlock()
		return s
	}
	if f.now().Before(f.downUntil) {
		f.mu.Unlock()
		return f.memory
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do("connect", func() (any, error) {
		f.mu.Lock()
		if f.durable != nil {
			s := f.durable
			f.mu.Unlock()
			return s, nil
		}
		f.mu.Unlock()

		connectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		s, err := f.connect(connectCtx)
		if err != nil {
			return nil, err
		}
		if f.onConnect != nil {
			if err := f.onConnect(connectCtx, s); err != nil {
				s.Close()
				return nil, err
			}
		}

		f.mu.Lock()
		f.durable = s
		f.mu.Unlock()
		f.logger.InfoContext(ctx, "Durable store connected", "backend", s.Kind())
		return s, nil
	})
	if err != nil {
		f.markDown(ctx, nil, err)
		return f.memory
	}
	return v.(Store)
}

// markDown drops a failed durable connection and schedules the next attempt.
func (f *Fallback) markDown(ctx context.Context, failed Store, err error) {
	f.mu.Lock()
	if failed != nil && f.durable == failed {
		f.durable = nil
		go failed.Close()
	}
	f.downUntil = f.now().Add(f.retryWait)
	f.mu.Unlock()

	f.logger.WarnContext(ctx, "Durable store unavailable, using in-memory fallback",
		"error", err,
		"retry_after", f.retryWait.String())
}

// run executes op on the current backend and retries on memory when the
// durable backend reports a connection failure.
func (f *Fallback) run(ctx context.Context, op func(Store) error) error {
	s := f.acquire(ctx)
	err := op(s)
	if err == nil || s == f.memory || !errors.Is(err, core.ErrStoreUnavailable) {
		return err
	}
	f.markDown(ctx, s, err)
	return op(f.memory)
}

func (f *Fallback) Find(ctx context.Context, collection string, filter Filter, sort ...Sort) ([]Record, error) {
	var out []Record
	err := f.run(ctx, func(s Store) error {
		var err error
		out, err = s.Find(ctx, collection, filter, sort...)
		return err
	})
	return out, err
}

func (f *Fallback) FindOne(ctx context.Context, collection string, filter Filter) (Record, error) {
	var out Record
	err := f.run(ctx, func(s Store) error {
		var err error
		out, err = s.FindOne(ctx, collection, filter)
		return err
	})
	return out, err
}

func (f *Fallback) Insert(ctx context.Context, collection string, rec Record) (string, error) {
	var id string
	err := f.run(ctx, func(s Store) error {
		var err error
		id, err = s.Insert(ctx, collection, rec)
		return err
	})
	return id, err
}

func (f *Fallback) InsertMany(ctx context.Context, collection string, recs []Record) error {
	return f.run(ctx, func(s Store) error {
		return s.InsertMany(ctx, collection, recs)
	})
}

func (f *Fallback) UpdateOne(ctx context.Context, collection string, match Filter, patch Record) (int64, error) {
	var n int64
	err := f.run(ctx, func(s Store) error {
		var err error
		n, err = s.UpdateOne(ctx, collection, match, patch)
		return err
	})
	return n, err
}

func (f *Fallback) DeleteOne(ctx context.Context, collection string, match Filter) (int64, error) {
	var n int64
	err := f.run(ctx, func(s Store) error {
		var err error
		n, err = s.DeleteOne(ctx, collection, match)
		return err
	})
	return n, err
}

// Ping checks the backend currently serving calls.
func (f *Fallback) Ping(ctx context.Context) error {
	return f.run(ctx, func(s Store) error {
		return s.Ping(ctx)
	})
}

func (f *Fallback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.durable != nil {
		err = f.durable.Close()
		f.durable = nil
	}
	if cerr := f.memory.Close(); err == nil {
		err = cerr
	}
	return err
}
