package curated

import (
	"context"
	"slices"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
)

// Compile-time check to ensure MemoryStore implements CuratedStore
var _ interfaces.CuratedStore = (*MemoryStore)(nil)

// MemoryStore serves curated lookups from the data container snapshot. Its
// version follows the container, so every reload invalidates cached records.
type MemoryStore struct {
	data interfaces.DataStore
}

func NewMemoryStore(data interfaces.DataStore) *MemoryStore {
	return &MemoryStore{data: data}
}

// Lookup matches the pair in either order
func (s *MemoryStore) Lookup(ctx context.Context, idA, idB string) (*entities.CuratedInteraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.data.GetCurated()[entities.NewInteractionKey(idA, idB)]
	if !ok {
		return nil, nil
	}
	rec.SideEffects = slices.Clone(rec.SideEffects)
	return &rec, nil
}

func (s *MemoryStore) Version() uint64 {
	return s.data.GetCuratedVersion()
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	return len(s.data.GetCurated()), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Name() string {
	return "memory"
}
