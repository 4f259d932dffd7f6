// Package store defines the record store contract shared by the durable
// SQLite backend and the in-memory fallback.
//
// Records are flat JSON documents keyed by an "id" field. Both backends
// must return the same logical result for the same Filter and Sort.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"fintrack/internal/core"
)

// Collection names.
const (
	Transactions = "transactions"
	Budgets      = "budgets"
	Categories   = "categories"
)

// IDField is the document key every record carries.
const IDField = "id"

var (
	ErrNoRecord          = errors.New("no matching record")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidField      = errors.New("invalid field name")
	ErrDuplicateID       = errors.New("duplicate record id")
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Store is the uniform query interface over both backends.
type Store interface {
	// Find returns matching records in insertion order, or ordered by sort.
	Find(ctx context.Context, collection string, filter Filter, sort ...Sort) ([]Record, error)
	// FindOne returns the first match in insertion order or ErrNoRecord.
	FindOne(ctx context.Context, collection string, filter Filter) (Record, error)
	// Insert stores rec and returns its id. A non-empty rec id is kept.
	Insert(ctx context.Context, collection string, rec Record) (string, error)
	InsertMany(ctx context.Context, collection string, recs []Record) error
	// UpdateOne merges patch into the first match and returns the count modified.
	UpdateOne(ctx context.Context, collection string, match Filter, patch Record) (int64, error)
	// DeleteOne removes the first match and returns the count deleted.
	DeleteOne(ctx context.Context, collection string, match Filter) (int64, error)
	Ping(ctx context.Context) error
	Kind() string
	Close() error
}

// Condition is an equality test on one field.
type Condition struct {
	Field string
	Value any
}

// Range is an inclusive calendar date range on one field. Zero bounds are open.
type Range struct {
	Field string
	From  core.Date
	To    core.Date
}

// Filter is a conjunction of equality conditions and an optional date range.
type Filter struct {
	Conditions []Condition
	Range      *Range
}

// Sort orders results by one field.
type Sort struct {
	Field string
	Desc  bool
}

// All matches every record.
func All() Filter { return Filter{} }

// Eq starts a filter with a single equality condition.
func Eq(field string, value any) Filter {
	return Filter{}.And(field, value)
}

// ByID matches the record with the given id.
func ByID(id string) Filter {
	return Eq(IDField, id)
}

// And adds an equality condition.
func (f Filter) And(field string, value any) Filter {
	conds := make([]Condition, len(f.Conditions), len(f.Conditions)+1)
	copy(conds, f.Conditions)
	f.Conditions = append(conds, Condition{Field: field, Value: value})
	return f
}

// Between sets the inclusive date range.
func (f Filter) Between(field string, from, to core.Date) Filter {
	f.Range = &Range{Field: field, From: from, To: to}
	return f
}

// Asc and Desc build sort orders.
func Asc(field string) Sort  { return Sort{Field: field} }
func Desc(field string) Sort { return Sort{Field: field, Desc: true} }

// Validate checks field names. Backends call it before touching data.
func (f Filter) Validate() error {
	for _, c := range f.Conditions {
		if err := ValidateField(c.Field); err != nil {
			return err
		}
	}
	if f.Range != nil {
		return ValidateField(f.Range.Field)
	}
	return nil
}

// ValidateField rejects names that are not plain identifiers.
func ValidateField(name string) error {
	if !fieldPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidField, name)
	}
	return nil
}

// ValidateCollection rejects unknown collection names.
func ValidateCollection(name string) error {
	switch name {
	case Transactions, Budgets, Categories:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
}

// ValidateQuery combines the collection, filter and sort checks.
func ValidateQuery(collection string, filter Filter, sort ...Sort) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		return err
	}
	for _, s := range sort {
		if err := ValidateField(s.Field); err != nil {
			return err
		}
	}
	return nil
}
