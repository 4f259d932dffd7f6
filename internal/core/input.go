package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// TransactionInput is the caller supplied part of a new transaction.
type TransactionInput struct {
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Description string           `json:"description" validate:"required"`
	Category    string           `json:"category" validate:"required"`
	Date        string           `json:"date" validate:"required,datetime=2006-01-02"`
	Type        TransactionType  `json:"type" validate:"required,oneof=income expense"`
}

// TransactionPatch holds the fields to change on an existing transaction.
// Nil fields are left untouched.
type TransactionPatch struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Date        *string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Type        *TransactionType `json:"type" validate:"omitempty,oneof=income expense"`
}

// BudgetInput is the caller supplied part of a budget upsert.
type BudgetInput struct {
	Category string           `json:"category" validate:"required"`
	Amount   *decimal.Decimal `json:"amount" validate:"required"`
	Month    *int             `json:"month" validate:"required,min=0,max=11"`
	Year     *int             `json:"year" validate:"required,min=1000,max=9999"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs the struct tag rules and reports the first failure as
// a ValidationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Message: fieldMessage(fe), Err: err}
	}
	return err
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return "must be a date in yyyy-MM-dd format"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Transaction validates the input and builds an unsaved transaction.
func (in TransactionInput) Transaction() (Transaction, error) {
	if err := ValidateStruct(in); err != nil {
		return Transaction{}, err
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "date", Message: "must be a date in yyyy-MM-dd format", Err: err}
	}
	t := Transaction{
		Amount:      *in.Amount,
		Description: in.Description,
		Category:    in.Category,
		Date:        date,
		Type:        in.Type,
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Amount == nil && p.Description == nil && p.Category == nil && p.Date == nil && p.Type == nil
}

// Apply merges the patch into t and validates the result.
func (p TransactionPatch) Apply(t Transaction) (Transaction, error) {
	if err := ValidateStruct(p); err != nil {
		return Transaction{}, err
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Date != nil {
		date, err := ParseDate(*p.Date)
		if err != nil {
			return Transaction{}, &ValidationError{Field: "date", Message: "must be a date in yyyy-MM-dd format", Err: err}
		}
		t.Date = date
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Budget validates the input and builds an unsaved budget.
func (in BudgetInput) Budget() (Budget, error) {
	if err := ValidateStruct(in); err != nil {
		return Budget{}, err
	}
	b := Budget{
		Category: in.Category,
		Amount:   *in.Amount,
		Month:    *in.Month,
		Year:     *in.Year,
	}
	if err := b.Validate(); err != nil {
		return Budget{}, err
	}
	return b, nil
}
