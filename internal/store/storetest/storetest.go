// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// Run exercises open() against the record store contract. Each subtest gets
// a fresh store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertGeneratesID", testInsertGeneratesID},
		{"InsertKeepsID", testInsertKeepsID},
		{"EqualityFilters", testEqualityFilters},
		{"DateRangeInclusive", testDateRangeInclusive},
		{"SortDateDesc", testSortDateDesc},
		{"PaddedDateIsText", testPaddedDateIsText},
		{"UpdateOne", testUpdateOne},
		{"DeleteOne", testDeleteOne},
		{"ArgumentErrors", testArgumentErrors},
		{"InsertMany", testInsertMany},
		{"EmptyCollection", testEmptyCollection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func jsonNumber(s string) json.Number { return json.Number(s) }

func tx(amount, category, date, typ string) store.Record {
	return store.Record{
		"amount":      jsonNumber(amount),
		"description": "test " + category,
		"category":    category,
		"date":        date,
		"type":        typ,
	}
}

func insert(t *testing.T, s store.Store, collection string, rec store.Record) string {
	t.Helper()
	id, err := s.Insert(context.Background(), collection, rec)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func ids(recs []store.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testInsertGeneratesID(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := insert(t, s, store.Transactions, tx("12.5", "food", "2025-03-01", "expense"))
	if id == "" {
		t.Fatalf("expected generated id")
	}

	got, err := s.FindOne(ctx, store.Transactions, store.ByID(id))
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got.ID() != id || got.String("category") != "food" || got.String("date") != "2025-03-01" {
		t.Fatalf("unexpected record: %v", got)
	}
	amount, err := got.Decimal("amount")
	if err != nil || amount.String() != "12.5" {
		t.Fatalf("amount = %v (%v), want 12.5", amount, err)
	}

	other := insert(t, s, store.Transactions, tx("1", "food", "2025-03-01", "expense"))
	if other == id {
		t.Fatalf("ids must be unique, got %q twice", id)
	}
}

func testInsertKeepsID(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := store.Record{"id": "food", "name": "Food & Dining", "color": "#ef4444", "type": "expense"}
	if id := insert(t, s, store.Categories, rec); id != "food" {
		t.Fatalf("id = %q, want food", id)
	}
	_, err := s.Insert(ctx, store.Categories, rec)
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func testEqualityFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	food := insert(t, s, store.Transactions, tx("10", "food", "2025-01-05", "expense"))
	insert(t, s, store.Transactions, tx("20", "salary", "2025-01-06", "income"))
	bills := insert(t, s, store.Transactions, tx("30", "bills", "2025-01-07", "expense"))

	got, err := s.Find(ctx, store.Transactions, store.Eq("type", core.Expense))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{food, bills}; !equalIDs(ids(got), want) {
		t.Fatalf("expense ids = %v, want %v", ids(got), want)
	}

	got, err = s.Find(ctx, store.Transactions, store.Eq("type", "expense").And("category", "bills"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{bills}; !equalIDs(ids(got), want) {
		t.Fatalf("bills ids = %v, want %v", ids(got), want)
	}

	insert(t, s, store.Budgets, store.Record{"category": "food", "amount": jsonNumber("300"), "month": 0, "year": 2025})
	feb := insert(t, s, store.Budgets, store.Record{"category": "food", "amount": jsonNumber("250"), "month": 1, "year": 2025})
	got, err = s.Find(ctx, store.Budgets, store.Eq("month", 1).And("year", 2025))
	if err != nil {
		t.Fatalf("find budgets: %v", err)
	}
	if want := []string{feb}; !equalIDs(ids(got), want) {
		t.Fatalf("budget ids = %v, want %v", ids(got), want)
	}
	month, err := got[0].Int("month")
	if err != nil || month != 1 {
		t.Fatalf("month = %d (%v), want 1", month, err)
	}
}

func testDateRangeInclusive(t *testing.T, s store.Store) {
	ctx := context.Background()
	insert(t, s, store.Transactions, tx("1", "food", "2024-12-31", "expense"))
	first := insert(t, s, store.Transactions, tx("2", "food", "2025-01-01", "expense"))
	mid := insert(t, s, store.Transactions, tx("3", "food", "2025-01-15", "expense"))
	last := insert(t, s, store.Transactions, tx("4", "food", "2025-01-31", "expense"))
	insert(t, s, store.Transactions, tx("5", "food", "2025-02-01", "expense"))

	filter := store.Eq("type", "expense").Between("date", core.StartOfMonth(2025, 0), core.EndOfMonth(2025, 0))
	got, err := s.Find(ctx, store.Transactions, filter)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{first, mid, last}; !equalIDs(ids(got), want) {
		t.Fatalf("january ids = %v, want %v", ids(got), want)
	}

	open := store.All().Between("date", core.NewDate(2025, time.January, 31), core.Date{})
	got, err = s.Find(ctx, store.Transactions, open)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("open range matched %d records, want 2", len(got))
	}
}

func testPaddedDateIsText(t *testing.T, s store.Store) {
	ctx := context.Background()
	clean := insert(t, s, store.Transactions, tx("1", "food", "2024-01-05", "expense"))
	insert(t, s, store.Transactions, tx("2", "food", " 2024-01-05", "expense"))

	got, err := s.Find(ctx, store.Transactions, store.Eq("date", "2024-01-05"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{clean}; !equalIDs(ids(got), want) {
		t.Fatalf("equality ids = %v, want %v", ids(got), want)
	}

	got, err = s.Find(ctx, store.Transactions, store.All().Between("date", core.StartOfMonth(2024, 0), core.EndOfMonth(2024, 0)))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{clean}; !equalIDs(ids(got), want) {
		t.Fatalf("range ids = %v, want %v", ids(got), want)
	}
}

func testSortDateDesc(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := insert(t, s, store.Transactions, tx("1", "food", "2025-01-02", "expense"))
	b := insert(t, s, store.Transactions, tx("2", "food", "2025-03-01", "expense"))
	c := insert(t, s, store.Transactions, tx("3", "food", "2025-01-02", "expense"))
	d := insert(t, s, store.Transactions, tx("4", "food", "2024-11-30", "expense"))

	got, err := s.Find(ctx, store.Transactions, store.All(), store.Desc("date"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{b, a, c, d}; !equalIDs(ids(got), want) {
		t.Fatalf("sorted ids = %v, want %v", ids(got), want)
	}

	got, err = s.Find(ctx, store.Transactions, store.All(), store.Asc("amount"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{a, b, c, d}; !equalIDs(ids(got), want) {
		t.Fatalf("amount ids = %v, want %v", ids(got), want)
	}
}

func testUpdateOne(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := insert(t, s, store.Transactions, tx("10", "food", "2025-01-05", "expense"))

	n, err := s.UpdateOne(ctx, store.Transactions, store.ByID(id), store.Record{"description": "patched", "id": "hijack"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 1 {
		t.Fatalf("modified = %d, want 1", n)
	}
	got, err := s.FindOne(ctx, store.Transactions, store.ByID(id))
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got.String("description") != "patched" || got.String("category") != "food" || got.ID() != id {
		t.Fatalf("unexpected record after update: %v", got)
	}

	n, err = s.UpdateOne(ctx, store.Transactions, store.ByID("missing"), store.Record{"description": "x"})
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if n != 0 {
		t.Fatalf("modified = %d, want 0", n)
	}
}

func testDeleteOne(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := insert(t, s, store.Transactions, tx("10", "food", "2025-01-05", "expense"))
	keep := insert(t, s, store.Transactions, tx("11", "food", "2025-01-06", "expense"))

	n, err := s.DeleteOne(ctx, store.Transactions, store.ByID(id))
	if err != nil || n != 1 {
		t.Fatalf("delete = %d, %v; want 1, nil", n, err)
	}
	n, err = s.DeleteOne(ctx, store.Transactions, store.ByID(id))
	if err != nil || n != 0 {
		t.Fatalf("second delete = %d, %v; want 0, nil", n, err)
	}
	if _, err := s.FindOne(ctx, store.Transactions, store.ByID(id)); !errors.Is(err, store.ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}
	got, err := s.Find(ctx, store.Transactions, store.All())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{keep}; !equalIDs(ids(got), want) {
		t.Fatalf("remaining ids = %v, want %v", ids(got), want)
	}
}

func testArgumentErrors(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.Find(ctx, "accounts", store.All()); !errors.Is(err, store.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
	if _, err := s.Find(ctx, store.Transactions, store.Eq("date') OR 1=1 --", "x")); !errors.Is(err, store.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
	if _, err := s.Find(ctx, store.Transactions, store.All(), store.Desc("a.b")); !errors.Is(err, store.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for sort, got %v", err)
	}
	if _, err := s.Insert(ctx, "accounts", store.Record{}); !errors.Is(err, store.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection on insert, got %v", err)
	}
}

func testInsertMany(t *testing.T, s store.Store) {
	ctx := context.Background()
	var recs []store.Record
	for _, c := range core.DefaultCategories() {
		recs = append(recs, store.Record{"id": c.ID, "name": c.Name, "color": c.Color, "type": string(c.Type)})
	}
	if err := s.InsertMany(ctx, store.Categories, recs); err != nil {
		t.Fatalf("insert many: %v", err)
	}
	got, err := s.Find(ctx, store.Categories, store.All())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("got %d categories, want %d", len(got), len(recs))
	}
	for i := range recs {
		if got[i].ID() != recs[i].ID() {
			t.Fatalf("order mismatch at %d: %s vs %s", i, got[i].ID(), recs[i].ID())
		}
	}
	if err := s.InsertMany(ctx, store.Categories, recs[:1]); !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func testEmptyCollection(t *testing.T, s store.Store) {
	got, err := s.Find(context.Background(), store.Budgets, store.Eq("month", 3))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records, got %d", len(got))
	}
}
