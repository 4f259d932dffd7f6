package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the persisted and wire form of a calendar date.
const DateLayout = "2006-01-02"

// DefaultCategoryColor is used for categories missing from the catalog.
const DefaultCategoryColor = "#6b7280"

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

func init() {
	// Amounts travel as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type (
	TransactionType string

	// Date is a calendar date without a time of day, always in UTC.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Date        Date            `json:"date"`
		Type        TransactionType `json:"type"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	Category struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Color string          `json:"color"`
		Type  TransactionType `json:"type"`
	}

	// Budget is keyed by (Category, Month, Year). Month is zero based.
	Budget struct {
		ID        string          `json:"id"`
		Category  string          `json:"category"`
		Amount    decimal.Decimal `json:"amount"`
		Month     int             `json:"month"`
		Year      int             `json:"year"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// TransactionFilter narrows a ledger listing. Zero fields match everything.
	TransactionFilter struct {
		Type     TransactionType
		Category string
		From     Date
		To       Date
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidYear      = errors.New("invalid year")
)

func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (t TransactionType) String() string {
	return string(t)
}

// NewDate creates a Date from year, month (1-12) and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a yyyy-MM-dd string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// StartOfMonth returns the first day of the given month (zero based) and year.
func StartOfMonth(year, month int) Date {
	return NewDate(year, time.Month(month+1), 1)
}

// EndOfMonth returns the last day of the given month (zero based) and year.
func EndOfMonth(year, month int) Date {
	return Date{Time: StartOfMonth(year, month).AddDate(0, 1, -1)}
}

// Within reports whether d falls in [from, to]. Zero bounds are open.
func (d Date) Within(from, to Date) bool {
	if !from.IsZero() && d.Before(from.Time) {
		return false
	}
	if !to.IsZero() && d.After(to.Time) {
		return false
	}
	return true
}

func (t Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than 0", Err: ErrInvalidAmount}
	}
	if strings.TrimSpace(t.Description) == "" {
		return &ValidationError{Field: "description", Message: "is required", Err: ErrEmptyDescription}
	}
	if strings.TrimSpace(t.Category) == "" {
		return &ValidationError{Field: "category", Message: "is required", Err: ErrEmptyCategory}
	}
	if t.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "is required", Err: ErrInvalidDate}
	}
	if !t.Type.IsValid() {
		return &ValidationError{Field: "type", Message: "must be one of: income expense", Err: ErrInvalidType}
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return &ValidationError{Field: "category", Message: "is required", Err: ErrEmptyCategory}
	}
	if !b.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "Budget amount must be greater than 0", Err: ErrInvalidAmount}
	}
	if b.Month < 0 || b.Month > 11 {
		return &ValidationError{Field: "month", Message: "must be between 0 and 11", Err: ErrInvalidMonth}
	}
	if b.Year < 1000 || b.Year > 9999 {
		return &ValidationError{Field: "year", Message: "must be a four-digit year", Err: ErrInvalidYear}
	}
	return nil
}

// Matches reports whether the transaction passes every set field of f.
func (f TransactionFilter) Matches(t Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	return t.Date.Within(f.From, f.To)
}

// DefaultCategories is the catalog seeded into an empty store.
func DefaultCategories() []Category {
	return []Category{
		{ID: "food", Name: "Food & Dining", Color: "#ef4444", Type: Expense},
		{ID: "transport", Name: "Transportation", Color: "#f97316", Type: Expense},
		{ID: "entertainment", Name: "Entertainment", Color: "#eab308", Type: Expense},
		{ID: "shopping", Name: "Shopping", Color: "#22c55e", Type: Expense},
		{ID: "bills", Name: "Bills & Utilities", Color: "#3b82f6", Type: Expense},
		{ID: "healthcare", Name: "Healthcare", Color: "#8b5cf6", Type: Expense},
		{ID: "salary", Name: "Salary", Color: "#10b981", Type: Income},
		{ID: "freelance", Name: "Freelance", Color: "#06b6d4", Type: Income},
		{ID: "investment", Name: "Investment", Color: "#6366f1", Type: Income},
		{ID: "other", Name: "Other", Color: DefaultCategoryColor, Type: Expense},
	}
}
