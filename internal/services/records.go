package services

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func transactionRecord(t core.Transaction) store.Record {
	rec := store.Record{
		"amount":      json.Number(t.Amount.String()),
		"description": t.Description,
		"category":    t.Category,
		"date":        t.Date.String(),
		"type":        string(t.Type),
		"createdAt":   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.ID != "" {
		rec[store.IDField] = t.ID
	}
	return rec
}

// patchRecord holds the stored form of the fields p sets on merged, plus
// updatedAt.
func patchRecord(merged core.Transaction, p core.TransactionPatch) store.Record {
	full := transactionRecord(merged)
	patch := store.Record{"updatedAt": full["updatedAt"]}
	set := map[string]bool{
		"amount":      p.Amount != nil,
		"description": p.Description != nil,
		"category":    p.Category != nil,
		"date":        p.Date != nil,
		"type":        p.Type != nil,
	}
	for field, ok := range set {
		if ok {
			patch[field] = full[field]
		}
	}
	return patch
}

// TransactionFromRecord decodes a stored transaction document.
func TransactionFromRecord(rec store.Record) (core.Transaction, error) {
	amount, err := rec.Decimal("amount")
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", rec.ID(), err)
	}
	date, err := core.ParseDate(rec.String("date"))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", rec.ID(), err)
	}
	typ := core.TransactionType(rec.String("type"))
	if !typ.IsValid() {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w %q", rec.ID(), core.ErrInvalidType, typ)
	}
	created, err := rec.Time("createdAt")
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: createdAt: %w", rec.ID(), err)
	}
	updated, err := rec.Time("updatedAt")
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: updatedAt: %w", rec.ID(), err)
	}
	return core.Transaction{
		ID:          rec.ID(),
		Amount:      amount,
		Description: rec.String("description"),
		Category:    rec.String("category"),
		Date:        date,
		Type:        typ,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

func budgetRecord(b core.Budget) store.Record {
	rec := store.Record{
		"category":  b.Category,
		"amount":    json.Number(b.Amount.String()),
		"month":     b.Month,
		"year":      b.Year,
		"createdAt": b.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if b.ID != "" {
		rec[store.IDField] = b.ID
	}
	return rec
}

// BudgetFromRecord decodes a stored budget document.
func BudgetFromRecord(rec store.Record) (core.Budget, error) {
	amount, err := rec.Decimal("amount")
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget %s: %w", rec.ID(), err)
	}
	month, err := rec.Int("month")
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget %s: %w", rec.ID(), err)
	}
	year, err := rec.Int("year")
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget %s: %w", rec.ID(), err)
	}
	created, err := rec.Time("createdAt")
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget %s: createdAt: %w", rec.ID(), err)
	}
	updated, err := rec.Time("updatedAt")
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget %s: updatedAt: %w", rec.ID(), err)
	}
	return core.Budget{
		ID:        rec.ID(),
		Category:  rec.String("category"),
		Amount:    amount,
		Month:     month,
		Year:      year,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func categoryRecord(c core.Category) store.Record {
	return store.Record{
		store.IDField: c.ID,
		"name":        c.Name,
		"color":       c.Color,
		"type":        string(c.Type),
	}
}

func categoryFromRecord(rec store.Record) core.Category {
	c := core.Category{
		ID:    rec.ID(),
		Name:  rec.String("name"),
		Color: rec.String("color"),
		Type:  core.TransactionType(rec.String("type")),
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Color == "" {
		c.Color = core.DefaultCategoryColor
	}
	return c
}

// storeError classifies a store failure for callers.
func storeError(op string, err error) error {
	return &core.UnexpectedError{Op: op, Err: err}
}
