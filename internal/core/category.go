package core

// CategoryRef is either a catalog id or free text with no catalog entry.
type CategoryRef interface {
	// Key is the identifier stored on transactions and budgets.
	Key() string
	isCategoryRef()
}

// KnownCategory references an entry of the category catalog.
type KnownCategory struct {
	ID string
}

// FreeformCategory is a category string with no catalog entry.
type FreeformCategory struct {
	Text string
}

func (k KnownCategory) Key() string    { return k.ID }
func (f FreeformCategory) Key() string { return f.Text }

func (KnownCategory) isCategoryRef()    {}
func (FreeformCategory) isCategoryRef() {}

// ResolvedCategory is the display metadata for a category reference.
type ResolvedCategory struct {
	Ref   CategoryRef
	Name  string
	Color string
}

// IsKnown reports whether the reference was found in the catalog.
func (r ResolvedCategory) IsKnown() bool {
	_, ok := r.Ref.(KnownCategory)
	return ok
}

// CategoryIndex is a lookup table over a catalog snapshot.
type CategoryIndex map[string]Category

// NewCategoryIndex indexes categories by id.
func NewCategoryIndex(categories []Category) CategoryIndex {
	idx := make(CategoryIndex, len(categories))
	for _, c := range categories {
		idx[c.ID] = c
	}
	return idx
}

// Resolve maps an id to display metadata. Unknown ids fall back to the raw
// id as name and the default color.
func (idx CategoryIndex) Resolve(id string) ResolvedCategory {
	if c, ok := idx[id]; ok {
		return ResolvedCategory{Ref: KnownCategory{ID: c.ID}, Name: c.Name, Color: c.Color}
	}
	return ResolvedCategory{Ref: FreeformCategory{Text: id}, Name: id, Color: DefaultCategoryColor}
}
