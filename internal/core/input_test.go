package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func decodeTransactionInput(t *testing.T, body string) TransactionInput {
	t.Helper()
	var in TransactionInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return in
}

func TestTransactionInput(t *testing.T) {
	in := decodeTransactionInput(t, `{"amount": 42.5, "description": " lunch ", "category": "food", "date": "2025-05-01", "type": "expense"}`)
	tx, err := in.Transaction()
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("42.5")) || tx.Description != " lunch " || tx.Date.String() != "2025-05-01" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestTransactionInputErrors(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing amount", `{"description": "a", "category": "food", "date": "2025-05-01", "type": "expense"}`, "amount"},
		{"zero amount", `{"amount": 0, "description": "a", "category": "food", "date": "2025-05-01", "type": "expense"}`, "amount"},
		{"negative amount", `{"amount": -3, "description": "a", "category": "food", "date": "2025-05-01", "type": "expense"}`, "amount"},
		{"missing description", `{"amount": 1, "category": "food", "date": "2025-05-01", "type": "expense"}`, "description"},
		{"missing category", `{"amount": 1, "description": "a", "date": "2025-05-01", "type": "expense"}`, "category"},
		{"blank description", `{"amount": 1, "description": "   ", "category": "food", "date": "2025-05-01", "type": "expense"}`, "description"},
		{"blank category", `{"amount": 1, "description": "a", "category": " ", "date": "2025-05-01", "type": "expense"}`, "category"},
		{"missing date", `{"amount": 1, "description": "a", "category": "food", "type": "expense"}`, "date"},
		{"bad date", `{"amount": 1, "description": "a", "category": "food", "date": "May 1", "type": "expense"}`, "date"},
		{"missing type", `{"amount": 1, "description": "a", "category": "food", "date": "2025-05-01"}`, "type"},
		{"bad type", `{"amount": 1, "description": "a", "category": "food", "date": "2025-05-01", "type": "gift"}`, "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeTransactionInput(t, tc.body).Transaction()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestTransactionPatchApply(t *testing.T) {
	base := Transaction{
		ID:          "1",
		Amount:      decimal.NewFromInt(10),
		Description: "coffee",
		Category:    "food",
		Date:        NewDate(2025, 1, 1),
		Type:        Expense,
	}

	var p TransactionPatch
	if err := json.Unmarshal([]byte(`{"description": "espresso"}`), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := p.Apply(base)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Description != "espresso" {
		t.Fatalf("description not patched: %+v", got)
	}
	if !got.Amount.Equal(base.Amount) || got.Category != base.Category || got.Date != base.Date || got.Type != base.Type {
		t.Fatalf("unpatched fields changed: %+v", got)
	}

	bad := decimal.NewFromInt(-1)
	if _, err := (TransactionPatch{Amount: &bad}).Apply(base); !IsValidation(err) {
		t.Fatalf("expected ValidationError for negative amount, got %v", err)
	}
	badDate := "2025-13-01"
	if _, err := (TransactionPatch{Date: &badDate}).Apply(base); !IsValidation(err) {
		t.Fatalf("expected ValidationError for bad date, got %v", err)
	}
	if !(TransactionPatch{}).IsEmpty() {
		t.Fatalf("zero patch should be empty")
	}
}

func TestBudgetInput(t *testing.T) {
	var in BudgetInput
	if err := json.Unmarshal([]byte(`{"category": "food", "amount": 300, "month": 0, "year": 2025}`), &in); err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := in.Budget()
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if b.Month != 0 || b.Year != 2025 || !b.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("unexpected budget: %+v", b)
	}

	cases := map[string]string{
		"month":    `{"category": "food", "amount": 300, "year": 2025}`,
		"year":     `{"category": "food", "amount": 300, "month": 1}`,
		"amount":   `{"category": "food", "amount": 0, "month": 1, "year": 2025}`,
		"category": `{"amount": 300, "month": 1, "year": 2025}`,
	}
	for field, body := range cases {
		var in BudgetInput
		if err := json.Unmarshal([]byte(body), &in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, err := in.Budget()
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != field {
			t.Errorf("expected ValidationError on %s, got %v", field, err)
		}
	}

	var outOfRange BudgetInput
	_ = json.Unmarshal([]byte(`{"category": "food", "amount": 300, "month": 12, "year": 2025}`), &outOfRange)
	if _, err := outOfRange.Budget(); !IsValidation(err) {
		t.Fatalf("month 12 should fail validation, got %v", err)
	}
}
