package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// CategoryResolver maps category ids to display metadata.
type CategoryResolver struct {
	store store.Store
}

func NewCategoryResolver(s store.Store) *CategoryResolver {
	return &CategoryResolver{store: s}
}

// SeedCategories inserts the default catalog when s holds no categories.
// Its signature fits store.FallbackConfig.OnConnect.
func SeedCategories(ctx context.Context, s store.Store) error {
	existing, err := s.Find(ctx, store.Categories, store.All())
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := core.DefaultCategories()
	recs := make([]store.Record, len(defaults))
	for i, c := range defaults {
		recs[i] = categoryRecord(c)
	}
	if err := s.InsertMany(ctx, store.Categories, recs); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			// Seeded concurrently by another process.
			return nil
		}
		return fmt.Errorf("seed categories: %w", err)
	}
	slog.InfoContext(ctx, "Seeded default categories", "count", len(recs), "backend", s.Kind())
	return nil
}

// Seed inserts the default catalog when it is empty.
func (r *CategoryResolver) Seed(ctx context.Context) error {
	if err := SeedCategories(ctx, r.store); err != nil {
		return storeError("seed categories", err)
	}
	return nil
}

// List returns the persisted catalog in seed order.
func (r *CategoryResolver) List(ctx context.Context) ([]core.Category, error) {
	recs, err := r.store.Find(ctx, store.Categories, store.All())
	if err != nil {
		return nil, storeError("list categories", err)
	}
	out := make([]core.Category, 0, len(recs))
	for _, rec := range recs {
		if rec.ID() == "" {
			continue
		}
		out = append(out, categoryFromRecord(rec))
	}
	return out, nil
}

// Index fetches the catalog once for repeated lookups.
func (r *CategoryResolver) Index(ctx context.Context) (core.CategoryIndex, error) {
	categories, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return core.NewCategoryIndex(categories), nil
}

// Resolve returns display metadata for id. Unknown ids resolve to a
// freeform reference with the default color.
func (r *CategoryResolver) Resolve(ctx context.Context, id string) (core.ResolvedCategory, error) {
	idx, err := r.Index(ctx)
	if err != nil {
		return core.ResolvedCategory{}, err
	}
	return idx.Resolve(id), nil
}
