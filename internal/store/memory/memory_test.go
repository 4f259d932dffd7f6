package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/store"
	"fintrack/internal/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestIDsIncreaseWithFrozenClock(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	s := New(WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	first, err := s.Insert(ctx, store.Transactions, store.Record{"description": "a"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	second, err := s.Insert(ctx, store.Transactions, store.Record{"description": "b"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first != "1700000000000" {
		t.Fatalf("first id = %s, want the clock in milliseconds", first)
	}
	if second != "1700000000001" {
		t.Fatalf("second id = %s, want 1700000000001", second)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, err := s.Insert(ctx, store.Transactions, store.Record{"description": "original"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.FindOne(ctx, store.Transactions, store.ByID(id))
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	got["description"] = "mutated"

	again, err := s.FindOne(ctx, store.Transactions, store.ByID(id))
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if again.String("description") != "original" {
		t.Fatalf("store was mutated through a returned record")
	}
}

func TestUnparsableDatesSkippedByRange(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Insert(ctx, store.Transactions, store.Record{"date": "soon"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.Find(ctx, store.Transactions, store.All().Between("date", core.NewDate(2000, time.January, 1), core.Date{}))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("record with unparsable date should not match a range")
	}
}

func TestConcurrentInserts(t *testing.T) {
	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Insert(ctx, store.Transactions, store.Record{"description": "x"}); err != nil {
				t.Errorf("insert: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Find(ctx, store.Transactions, store.All())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("got %d records, want 50", len(got))
	}
	seen := map[string]bool{}
	for _, r := range got {
		if seen[r.ID()] {
			t.Fatalf("duplicate id %s", r.ID())
		}
		seen[r.ID()] = true
	}
}
