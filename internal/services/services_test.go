package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) kinds() []amqp.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventKind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(time.Second)
		return t
	}
}

func input(amount, description, category, date string, typ core.TransactionType) core.TransactionInput {
	return core.TransactionInput{
		Amount:      dec(amount),
		Description: description,
		Category:    category,
		Date:        date,
		Type:        typ,
	}
}

func TestCategoryResolver(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := NewCategoryResolver(s)

	got, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("List must not seed, got %d categories", len(got))
	}

	for i := 0; i < 2; i++ {
		if err := r.Seed(ctx); err != nil {
			t.Fatalf("Seed #%d: %v", i+1, err)
		}
	}
	got, err = r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	defaults := core.DefaultCategories()
	if len(got) != len(defaults) {
		t.Fatalf("got %d categories after seeding twice, want %d", len(got), len(defaults))
	}
	for i := range defaults {
		if got[i] != defaults[i] {
			t.Fatalf("category %d = %+v, want %+v", i, got[i], defaults[i])
		}
	}

	tests := []struct {
		id        string
		wantName  string
		wantColor string
		wantKnown bool
	}{
		{"food", "Food & Dining", "#ef4444", true},
		{"salary", "Salary", "#10b981", true},
		{"groceries", "groceries", core.DefaultCategoryColor, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			res, err := r.Resolve(ctx, tt.id)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if res.Name != tt.wantName || res.Color != tt.wantColor || res.IsKnown() != tt.wantKnown {
				t.Fatalf("Resolve(%q) = %+v", tt.id, res)
			}
			if res.Ref.Key() != tt.id {
				t.Fatalf("ref key = %q, want %q", res.Ref.Key(), tt.id)
			}
		})
	}
}

func TestSeedCategoriesKeepsExistingCatalog(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if _, err := s.Insert(ctx, store.Categories, store.Record{"id": "rent", "name": "Rent"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := SeedCategories(ctx, s); err != nil {
		t.Fatalf("SeedCategories: %v", err)
	}
	got, err := NewCategoryResolver(s).List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != "rent" || got[0].Color != core.DefaultCategoryColor {
		t.Fatalf("unexpected catalog %+v", got)
	}
}

func TestTransactionLedgerCreateValidation(t *testing.T) {
	ledger := NewTransactionLedger(memory.New(), nil)

	tests := []struct {
		name  string
		in    core.TransactionInput
		field string
	}{
		{"missing amount", core.TransactionInput{Description: "x", Category: "food", Date: "2025-01-01", Type: core.Expense}, "amount"},
		{"zero amount", input("0", "x", "food", "2025-01-01", core.Expense), "amount"},
		{"negative amount", input("-5", "x", "food", "2025-01-01", core.Expense), "amount"},
		{"blank description", input("5", "", "food", "2025-01-01", core.Expense), "description"},
		{"blank category", input("5", "x", "", "2025-01-01", core.Expense), "category"},
		{"bad date", input("5", "x", "food", "01/02/2025", core.Expense), "date"},
		{"bad type", input("5", "x", "food", "2025-01-01", "transfer"), "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Create(context.Background(), tt.in)
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestTransactionLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	events := NewEvents(pub)
	var hooked int
	events.OnChange(func(ctx context.Context, ev *amqp.LedgerEvent) { hooked++ })

	start := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	ledger := NewTransactionLedger(memory.New(), events, WithClock(fixedClock(start)))

	created, err := ledger.Create(ctx, input("42.50", "  Groceries ", "food", "2025-03-09", core.Expense))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Description != "  Groceries " {
		t.Fatalf("unexpected transaction %+v", created)
	}
	if !created.CreatedAt.Equal(start) || !created.UpdatedAt.Equal(start) {
		t.Fatalf("timestamps = %v / %v, want %v", created.CreatedAt, created.UpdatedAt, start)
	}

	got, err := ledger.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("42.5")) || got.Date.String() != "2025-03-09" || !got.CreatedAt.Equal(start) {
		t.Fatalf("stored transaction = %+v", got)
	}

	updated, err := ledger.Update(ctx, created.ID, core.TransactionPatch{Description: strPtr("Weekly groceries")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Description != "Weekly groceries" || updated.Category != "food" || !updated.Amount.Equal(got.Amount) {
		t.Fatalf("merge lost fields: %+v", updated)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("updatedAt %v must follow %v, createdAt preserved", updated.UpdatedAt, created.UpdatedAt)
	}

	if err := ledger.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ledger.Get(ctx, created.ID); !core.IsNotFound(err) {
		t.Fatalf("expected NotFoundError after delete, got %v", err)
	}

	want := []amqp.EventKind{amqp.TransactionCreated, amqp.TransactionUpdated, amqp.TransactionDeleted}
	kinds := pub.kinds()
	if len(kinds) != len(want) {
		t.Fatalf("published %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("published %v, want %v", kinds, want)
		}
	}
	if hooked != 3 {
		t.Fatalf("hooks ran %d times, want 3", hooked)
	}
	if ev := pub.events[0]; ev.Month != 2 || ev.Year != 2025 || ev.Category != "food" {
		t.Fatalf("event period = %+v", ev)
	}
}

func TestTransactionLedgerUpdateWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	ledger := NewTransactionLedger(memory.New(), nil, WithClock(func() time.Time { return frozen }))

	created, err := ledger.Create(ctx, input("10", "Bus", "transport", "2025-01-01", core.Expense))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	updated, err := ledger.Update(ctx, created.ID, core.TransactionPatch{Amount: dec("11")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("updatedAt %v must be strictly after %v", updated.UpdatedAt, created.UpdatedAt)
	}
	stored, err := ledger.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Fatalf("stored updatedAt %v, want %v", stored.UpdatedAt, updated.UpdatedAt)
	}
}

func TestTransactionLedgerErrors(t *testing.T) {
	ctx := context.Background()
	ledger := NewTransactionLedger(memory.New(), nil)

	if _, err := ledger.Update(ctx, "missing", core.TransactionPatch{Description: strPtr("x")}); !core.IsNotFound(err) {
		t.Fatalf("Update missing: expected NotFoundError, got %v", err)
	}
	if err := ledger.Delete(ctx, "missing"); !core.IsNotFound(err) {
		t.Fatalf("Delete missing: expected NotFoundError, got %v", err)
	}

	created, err := ledger.Create(ctx, input("10", "Bus", "transport", "2025-01-01", core.Expense))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := ledger.Update(ctx, created.ID, core.TransactionPatch{Amount: dec("0")}); !core.IsValidation(err) {
		t.Fatalf("expected ValidationError for zero amount, got %v", err)
	}
	bad := core.TransactionType("refund")
	if _, err := ledger.Update(ctx, created.ID, core.TransactionPatch{Type: &bad}); !core.IsValidation(err) {
		t.Fatalf("expected ValidationError for type, got %v", err)
	}
}

func TestTransactionLedgerList(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ledger := NewTransactionLedger(s, nil)

	seed := []core.TransactionInput{
		input("10", "Lunch", "food", "2025-01-15", core.Expense),
		input("3000", "Pay", "salary", "2025-01-31", core.Income),
		input("25", "Train", "transport", "2025-02-02", core.Expense),
		input("12", "Dinner", "food", "2024-12-20", core.Expense),
	}
	for _, in := range seed {
		if _, err := ledger.Create(ctx, in); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := s.Insert(ctx, store.Transactions, store.Record{
		"amount": json.Number("5"), "description": "broken", "category": "food", "date": "not-a-date", "type": "expense",
	}); err != nil {
		t.Fatalf("insert malformed: %v", err)
	}

	tests := []struct {
		name   string
		filter core.TransactionFilter
		want   []string
	}{
		{"all newest first", core.TransactionFilter{}, []string{"Train", "Pay", "Lunch", "Dinner"}},
		{"expenses", core.TransactionFilter{Type: core.Expense}, []string{"Train", "Lunch", "Dinner"}},
		{"category", core.TransactionFilter{Category: "food"}, []string{"Lunch", "Dinner"}},
		{"january", core.TransactionFilter{From: core.StartOfMonth(2025, 0), To: core.EndOfMonth(2025, 0)}, []string{"Pay", "Lunch"}},
		{"open ended", core.TransactionFilter{From: core.NewDate(2025, time.February, 1)}, []string{"Train"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d transactions, want %v", len(got), tt.want)
			}
			for i, tx := range got {
				if tx.Description != tt.want[i] {
					t.Fatalf("position %d = %q, want %q", i, tx.Description, tt.want[i])
				}
			}
		})
	}
}

func TestEventsPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	ledger := NewTransactionLedger(memory.New(), NewEvents(pub))
	if _, err := ledger.Create(context.Background(), input("1", "Coffee", "food", "2025-05-05", core.Expense)); err != nil {
		t.Fatalf("Create must succeed when publishing fails: %v", err)
	}
	if len(pub.kinds()) != 1 {
		t.Fatalf("expected one publish attempt")
	}
}

func TestBudgetLedgerUpsert(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	start := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	ledger := NewBudgetLedger(memory.New(), NewEvents(pub), WithClock(fixedClock(start)))

	in := core.BudgetInput{Category: "food", Amount: dec("300"), Month: intPtr(3), Year: intPtr(2025)}
	first, err := ledger.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	in.Amount = dec("350.75")
	second, err := ledger.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert created a new budget: %s vs %s", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) || !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("timestamps not preserved: %+v vs %+v", second, first)
	}

	all, err := ledger.List(ctx, nil, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || !all[0].Amount.Equal(decimal.RequireFromString("350.75")) {
		t.Fatalf("budgets = %+v", all)
	}
	if !all[0].CreatedAt.Equal(start) {
		t.Fatalf("stored createdAt = %v, want %v", all[0].CreatedAt, start)
	}
	if n := len(pub.kinds()); n != 2 {
		t.Fatalf("published %d events, want 2", n)
	}
}

func TestBudgetLedgerList(t *testing.T) {
	ctx := context.Background()
	ledger := NewBudgetLedger(memory.New(), nil)
	for _, b := range []core.BudgetInput{
		{Category: "food", Amount: dec("300"), Month: intPtr(0), Year: intPtr(2025)},
		{Category: "food", Amount: dec("280"), Month: intPtr(1), Year: intPtr(2025)},
		{Category: "transport", Amount: dec("90"), Month: intPtr(0), Year: intPtr(2024)},
	} {
		if _, err := ledger.Upsert(ctx, b); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	tests := []struct {
		name  string
		month *int
		year  *int
		want  int
	}{
		{"unfiltered", nil, nil, 3},
		{"month only", intPtr(0), nil, 2},
		{"year only", nil, intPtr(2025), 2},
		{"month and year", intPtr(0), intPtr(2025), 1},
		{"no match", intPtr(11), intPtr(2025), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.List(ctx, tt.month, tt.year)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d budgets, want %d", len(got), tt.want)
			}
		})
	}
}

func TestBudgetLedgerValidationAndDelete(t *testing.T) {
	ctx := context.Background()
	ledger := NewBudgetLedger(memory.New(), nil)

	tests := []struct {
		name  string
		in    core.BudgetInput
		field string
	}{
		{"missing category", core.BudgetInput{Amount: dec("1"), Month: intPtr(0), Year: intPtr(2025)}, "category"},
		{"zero amount", core.BudgetInput{Category: "food", Amount: dec("0"), Month: intPtr(0), Year: intPtr(2025)}, "amount"},
		{"month 12", core.BudgetInput{Category: "food", Amount: dec("1"), Month: intPtr(12), Year: intPtr(2025)}, "month"},
		{"short year", core.BudgetInput{Category: "food", Amount: dec("1"), Month: intPtr(0), Year: intPtr(99)}, "year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Upsert(ctx, tt.in)
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected ValidationError on %s, got %v", tt.field, err)
			}
		})
	}

	if err := ledger.Delete(ctx, "missing"); !core.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	b, err := ledger.Upsert(ctx, core.BudgetInput{Category: "bills", Amount: dec("120"), Month: intPtr(5), Year: intPtr(2025)})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := ledger.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ledger.Get(ctx, b.ID); !core.IsNotFound(err) {
		t.Fatalf("expected NotFoundError after delete, got %v", err)
	}
}

// slowLookups delays FindOne the way a durable round trip would, widening
// any window between a read and the write that depends on it.
type slowLookups struct {
	store.Store
	delay time.Duration
}

func (s slowLookups) FindOne(ctx context.Context, collection string, filter store.Filter) (store.Record, error) {
	time.Sleep(s.delay)
	return s.Store.FindOne(ctx, collection, filter)
}

func TestBudgetLedgerConcurrentUpsertsKeepOneBudget(t *testing.T) {
	ctx := context.Background()
	ledger := NewBudgetLedger(slowLookups{Store: memory.New(), delay: 5 * time.Millisecond}, NewEvents(nil))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Upsert(ctx, core.BudgetInput{Category: "food", Amount: dec("300"), Month: intPtr(5), Year: intPtr(2024)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	all, err := ledger.List(ctx, intPtr(5), intPtr(2024))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("stored %d budgets for one (food, 5, 2024) key, want 1", len(all))
	}
}

func TestTransactionLedgerConcurrentPatchesKeepBothFields(t *testing.T) {
	ctx := context.Background()
	ledger := NewTransactionLedger(slowLookups{Store: memory.New(), delay: 5 * time.Millisecond}, NewEvents(nil))

	created, err := ledger.Create(ctx, input("10", "lunch", "food", "2025-03-09", core.Expense))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	patches := []core.TransactionPatch{
		{Amount: dec("99")},
		{Description: strPtr("dinner")},
	}
	var wg sync.WaitGroup
	for _, p := range patches {
		wg.Add(1)
		go func(p core.TransactionPatch) {
			defer wg.Done()
			if _, err := ledger.Update(ctx, created.ID, p); err != nil {
				t.Errorf("Update: %v", err)
			}
		}(p)
	}
	wg.Wait()

	got, err := ledger.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("99")) || got.Description != "dinner" {
		t.Fatalf("amount=%s description=%q, want 99 and dinner", got.Amount, got.Description)
	}
}

func TestTransactionLedgerPatchWritesOnlySetFields(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	ledger := NewTransactionLedger(mem, NewEvents(nil))

	created, err := ledger.Create(ctx, input("10", "lunch", "food", "2025-03-09", core.Expense))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// A concurrent writer elsewhere changes the category directly.
	if _, err := mem.UpdateOne(ctx, store.Transactions, store.ByID(created.ID), store.Record{"category": "shopping"}); err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}
	if _, err := ledger.Update(ctx, created.ID, core.TransactionPatch{Description: strPtr("brunch")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := ledger.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Category != "shopping" || got.Description != "brunch" {
		t.Fatalf("category=%q description=%q", got.Category, got.Description)
	}
}

func TestTransactionLedgerRoundTripKeepsText(t *testing.T) {
	ctx := context.Background()
	ledger := NewTransactionLedger(memory.New(), NewEvents(nil))

	created, err := ledger.Create(ctx, input("12.5", "  Lunch with team ", " food", "2025-03-09", core.Expense))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	list, err := ledger.List(ctx, core.TransactionFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("listed %d transactions", len(list))
	}
	got := list[0]
	if got.ID != created.ID || got.Description != "  Lunch with team " || got.Category != " food" ||
		!got.Amount.Equal(created.Amount) || got.Date.String() != created.Date.String() || got.Type != created.Type ||
		!got.CreatedAt.Equal(created.CreatedAt) || !got.UpdatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("read back %+v, wrote %+v", got, created)
	}
}
