package engine

import (
	"context"

	"github.com/roach88/herdsync/internal/record"
	"github.com/roach88/herdsync/internal/store"
)

// Source says which store an Item came from.
type Source string

const (
	SourcePending Source = "pending"
	SourceSynced  Source = "synced"
)

// Item is one row of the merged view.
type Item struct {
	Source    Source `json:"source"`
	LocalID   int64  `json:"localId,omitempty"`
	ID        int64  `json:"id,omitempty"`
	CreatedAt string `json:"createdAt"`
	record.Fields
}

// Key is the item's dedup key.
func (i Item) Key() record.DedupKey {
	return record.DedupKey{AnimalNumber: i.AnimalNumber, CreatedAt: i.CreatedAt}
}

// Assemble merges the two stores into one list: every pending record in
// queue order, then cached records in snapshot order. A cached record whose
// animal number was already listed is skipped, so a pending record shadows
// its synced counterpart and duplicate snapshot rows collapse to the first.
func Assemble(pending []record.Pending, cached []record.Cached) []Item {
	items := make([]Item, 0, len(pending)+len(cached))
	seen := make(map[string]bool, len(pending)+len(cached))

	for _, p := range pending {
		seen[p.AnimalNumber] = true
		items = append(items, Item{
			Source:    SourcePending,
			LocalID:   p.LocalID,
			CreatedAt: p.CreatedAt,
			Fields:    p.Fields,
		})
	}
	for _, c := range cached {
		if seen[c.AnimalNumber] {
			continue
		}
		seen[c.AnimalNumber] = true
		items = append(items, Item{
			Source:    SourceSynced,
			ID:        c.ID,
			CreatedAt: c.CreatedAt,
			Fields:    c.Fields,
		})
	}
	return items
}

// Assembler reads both stores on every View.
type Assembler struct {
	pending *store.PendingStore
	cache   *store.ServerCache
}

func NewAssembler(pending *store.PendingStore, cache *store.ServerCache) *Assembler {
	return &Assembler{pending: pending, cache: cache}
}

// View is Assemble over the current contents of both stores.
func (a *Assembler) View(ctx context.Context) []Item {
	return Assemble(a.pending.List(ctx), a.cache.Get(ctx))
}
