package memory

import (
	"context"
	"sync"

	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Interface guard
var _ storage.CategoryIndexStore = (*IndexStore)(nil)

// IndexStore is the in-process CategoryIndexStore used by tests and local
// runs. Writes are all-or-nothing with the same version semantics as the
// postgres adapter.
type IndexStore struct {
	mu      sync.RWMutex
	indexes map[int64]*model.CategoryIndex
}

func NewIndexStore() *IndexStore {
	return &IndexStore{indexes: make(map[int64]*model.CategoryIndex)}
}

func (s *IndexStore) BulkGet(_ context.Context, categoryIDs []int64) (map[int64]*model.CategoryIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make(map[int64]*model.CategoryIndex, len(categoryIDs))
	for _, id := range categoryIDs {
		if idx, ok := s.indexes[id]; ok {
			res[id] = idx.Clone()
		}
	}
	return res, nil
}

func (s *IndexStore) Get(_ context.Context, categoryID int64) (*model.CategoryIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexes[categoryID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return idx.Clone(), nil
}

func (s *IndexStore) BulkPut(_ context.Context, indexes []*model.CategoryIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every version before touching anything.
	var conflicts []int64
	for _, idx := range indexes {
		current, ok := s.indexes[idx.CategoryID]
		if ok && current.Version != idx.Version {
			conflicts = append(conflicts, idx.CategoryID)
		}
		if !ok && idx.Version != 0 {
			conflicts = append(conflicts, idx.CategoryID)
		}
	}
	if len(conflicts) > 0 {
		return &storage.VersionConflictError{CategoryIDs: conflicts}
	}

	for _, idx := range indexes {
		cp := idx.Clone()
		cp.Version++
		s.indexes[idx.CategoryID] = cp
	}
	return nil
}

// Seed installs an aggregate directly, bypassing version checks. Test helper.
func (s *IndexStore) Seed(idx *model.CategoryIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[idx.CategoryID] = idx.Clone()
}
