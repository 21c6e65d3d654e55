package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Interface guard
var _ storage.IDMappingStore = (*MappingStore)(nil)

// MappingStore persists the append-only id translation table. Entries
// survive restarts and are shared by every linking-consumer instance.
type MappingStore struct {
	db *DB
}

func NewMappingStore(db *DB) *MappingStore { return &MappingStore{db: db} }

func (s *MappingStore) Lookup(ctx context.Context, entity event.EntityType, oldID int64) (int64, bool, error) {
	var newID int64
	err := s.db.Pool.QueryRow(ctx,
		`SELECT new_id FROM id_mappings WHERE entity_type = $1 AND old_id = $2`,
		string(entity), oldID).Scan(&newID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mapping lookup: %w", err)
	}
	return newID, true, nil
}

// Record inserts with ON CONFLICT DO NOTHING: the first mapping for an old
// id wins and redelivered events are no-ops.
func (s *MappingStore) Record(ctx context.Context, m model.IDMapping) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO id_mappings (entity_type, old_id, new_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity_type, old_id) DO NOTHING`,
		string(m.EntityType), m.OldID, m.NewID, createdAt)
	if err != nil {
		return fmt.Errorf("mapping record: %w", err)
	}
	return nil
}
