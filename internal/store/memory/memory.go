// Package memory is the in-process fallback backend of the record store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// Store keeps every collection in memory. All methods are safe for
// concurrent use.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	lastID      int64
	now         func() time.Time
}

type collection struct {
	order []string
	docs  map[string]store.Record
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for id generation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]*collection),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Kind() string                   { return "memory" }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]store.Record)}
		s.collections[name] = c
	}
	return c
}

// nextID returns the wall clock in milliseconds as text, bumped so that it
// always increases.
func (s *Store) nextID() string {
	ms := s.now().UnixMilli()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	return strconv.FormatInt(ms, 10)
}

func (s *Store) Find(ctx context.Context, name string, filter store.Filter, order ...store.Sort) ([]store.Record, error) {
	if err := store.ValidateQuery(name, filter, order...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	c := s.coll(name)
	out := make([]store.Record, 0, len(c.order))
	for _, id := range c.order {
		doc := c.docs[id]
		if matches(doc, filter) {
			out = append(out, doc.Clone())
		}
	}
	s.mu.Unlock()

	if len(order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range order {
				cmp := compare(field(out[i], o.Field), field(out[j], o.Field))
				if cmp == 0 {
					continue
				}
				if o.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	return out, nil
}

func (s *Store) FindOne(ctx context.Context, name string, filter store.Filter) (store.Record, error) {
	if err := store.ValidateQuery(name, filter); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	if id, ok := c.first(filter); ok {
		return c.docs[id].Clone(), nil
	}
	return nil, store.ErrNoRecord
}

func (s *Store) Insert(ctx context.Context, name string, rec store.Record) (string, error) {
	if err := store.ValidateCollection(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(name, rec)
}

func (s *Store) InsertMany(ctx context.Context, name string, recs []store.Record) error {
	if err := store.ValidateCollection(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		id := rec.ID()
		if id == "" {
			continue
		}
		if _, exists := c.docs[id]; exists || seen[id] {
			return fmt.Errorf("%w: %s/%s", store.ErrDuplicateID, name, id)
		}
		seen[id] = true
	}
	for _, rec := range recs {
		if _, err := s.insertLocked(name, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertLocked(name string, rec store.Record) (string, error) {
	doc, err := store.Normalize(rec)
	if err != nil {
		return "", err
	}
	c := s.coll(name)
	id := doc.ID()
	if id == "" {
		id = s.nextID()
	} else if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("%w: %s/%s", store.ErrDuplicateID, name, id)
	}
	doc[store.IDField] = id
	c.docs[id] = doc
	c.order = append(c.order, id)
	return id, nil
}

func (s *Store) UpdateOne(ctx context.Context, name string, match store.Filter, patch store.Record) (int64, error) {
	if err := store.ValidateQuery(name, match); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	normalized, err := store.Normalize(patch)
	if err != nil {
		return 0, err
	}
	delete(normalized, store.IDField)

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	id, ok := c.first(match)
	if !ok {
		return 0, nil
	}
	doc := c.docs[id].Clone()
	for k, v := range normalized {
		doc[k] = v
	}
	c.docs[id] = doc
	return 1, nil
}

func (s *Store) DeleteOne(ctx context.Context, name string, match store.Filter) (int64, error) {
	if err := store.ValidateQuery(name, match); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	id, ok := c.first(match)
	if !ok {
		return 0, nil
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

func (c *collection) first(filter store.Filter) (string, bool) {
	for _, id := range c.order {
		if matches(c.docs[id], filter) {
			return id, true
		}
	}
	return "", false
}

// field reads a top level value through a JSONPath lookup. Missing keys
// read as nil.
func field(doc store.Record, name string) any {
	v, err := jsonpath.Get("$."+name, map[string]any(doc))
	if err != nil {
		return nil
	}
	return v
}

func matches(doc store.Record, filter store.Filter) bool {
	for _, c := range filter.Conditions {
		if !equal(field(doc, c.Field), store.Canonical(c.Value)) {
			return false
		}
	}
	if r := filter.Range; r != nil {
		s, ok := field(doc, r.Field).(string)
		if !ok {
			return false
		}
		d, ok := storedDate(s)
		if !ok {
			return false
		}
		return d.Within(r.From, r.To)
	}
	return true
}

// storedDate parses s only when it is exactly yyyy-MM-dd, so text that
// SQLite would compare byte for byte is never treated as a date.
func storedDate(s string) (core.Date, bool) {
	t, err := time.Parse(core.DateLayout, s)
	if err != nil {
		return core.Date{}, false
	}
	return core.Date{Time: t}, true
}

// rank mirrors SQLite's ordering of storage classes: null, numeric, text.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case json.Number, int, int32, int64, float32, float64, decimal.Decimal, bool:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

func number(v any) decimal.Decimal {
	switch n := v.(type) {
	case json.Number:
		d, _ := decimal.NewFromString(n.String())
		return d
	case int:
		return decimal.NewFromInt(int64(n))
	case int32:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case float32:
		return decimal.NewFromFloat32(n)
	case float64:
		return decimal.NewFromFloat(n)
	case decimal.Decimal:
		return n
	case bool:
		if n {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}
	return decimal.Zero
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return rank(a) == rank(b) && compare(a, b) == 0
}

// compare orders two values. Text values that both parse as calendar dates
// compare as dates.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		return number(a).Cmp(number(b))
	case 2:
		sa, sb := a.(string), b.(string)
		da, okA := storedDate(sa)
		db, okB := storedDate(sb)
		if okA && okB {
			return da.Compare(db.Time)
		}
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	default:
		sa, sb := fmt.Sprint(a), fmt.Sprint(b)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	}
}
