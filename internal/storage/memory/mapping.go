package memory

import (
	"context"
	"sync"
	"time"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Interface guard
var _ storage.IDMappingStore = (*MappingStore)(nil)

type mappingKey struct {
	entity event.EntityType
	oldID  int64
}

// MappingStore is the in-process append-only id-mapping table.
type MappingStore struct {
	mu       sync.RWMutex
	mappings map[mappingKey]model.IDMapping
}

func NewMappingStore() *MappingStore {
	return &MappingStore{mappings: make(map[mappingKey]model.IDMapping)}
}

func (s *MappingStore) Lookup(_ context.Context, entity event.EntityType, oldID int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[mappingKey{entity, oldID}]
	if !ok {
		return 0, false, nil
	}
	return m.NewID, true, nil
}

func (s *MappingStore) Record(_ context.Context, m model.IDMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := mappingKey{m.EntityType, m.OldID}
	if _, exists := s.mappings[key]; exists {
		return nil // first write wins
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.mappings[key] = m
	return nil
}
