package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Interface guard
var _ storage.CategoryIndexStore = (*IndexStore)(nil)

// IndexStore persists category→expense-id aggregates with an optimistic
// version column. Member sets are stored as jsonb: {"<user_id>": [ids...]}.
type IndexStore struct {
	db *DB
}

func NewIndexStore(db *DB) *IndexStore { return &IndexStore{db: db} }

func (s *IndexStore) BulkGet(ctx context.Context, categoryIDs []int64) (map[int64]*model.CategoryIndex, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT category_id, members, version
		   FROM category_expense_index
		  WHERE category_id = ANY($1)`, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("index bulk get: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]*model.CategoryIndex, len(categoryIDs))
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, err
		}
		res[idx.CategoryID] = idx
	}
	return res, rows.Err()
}

func (s *IndexStore) Get(ctx context.Context, categoryID int64) (*model.CategoryIndex, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT category_id, members, version
		   FROM category_expense_index
		  WHERE category_id = $1`, categoryID)

	idx, err := scanIndex(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return idx, err
}

// BulkPut writes every aggregate inside one transaction. Version-guarded
// updates that match zero rows, and inserts that lose a create race, are
// collected as conflicts; any conflict rolls the whole write back.
func (s *IndexStore) BulkPut(ctx context.Context, indexes []*model.CategoryIndex) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("index bulk put: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var conflicts []int64
	for _, idx := range indexes {
		members, err := marshalMembers(idx.Members)
		if err != nil {
			return err
		}

		if idx.Version == 0 {
			ct, err := tx.Exec(ctx,
				`INSERT INTO category_expense_index (category_id, members, version)
				 VALUES ($1, $2, 1)
				 ON CONFLICT (category_id) DO NOTHING`,
				idx.CategoryID, members)
			if err != nil {
				return fmt.Errorf("index insert %d: %w", idx.CategoryID, err)
			}
			if ct.RowsAffected() == 0 {
				conflicts = append(conflicts, idx.CategoryID)
			}
			continue
		}

		ct, err := tx.Exec(ctx,
			`UPDATE category_expense_index
			    SET members = $2, version = version + 1
			  WHERE category_id = $1 AND version = $3`,
			idx.CategoryID, members, idx.Version)
		if err != nil {
			return fmt.Errorf("index update %d: %w", idx.CategoryID, err)
		}
		if ct.RowsAffected() == 0 {
			conflicts = append(conflicts, idx.CategoryID)
		}
	}

	if len(conflicts) > 0 {
		return &storage.VersionConflictError{CategoryIDs: conflicts}
	}
	return tx.Commit(ctx)
}

func scanIndex(row pgx.Row) (*model.CategoryIndex, error) {
	var (
		idx     model.CategoryIndex
		members []byte
	)
	if err := row.Scan(&idx.CategoryID, &members, &idx.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("index scan: %w", err)
	}

	parsed, err := unmarshalMembers(members)
	if err != nil {
		return nil, err
	}
	idx.Members = parsed
	return &idx, nil
}

func marshalMembers(members map[int64]map[int64]struct{}) ([]byte, error) {
	wire := make(map[string][]int64, len(members))
	for userID, set := range members {
		ids := make([]int64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		wire[strconv.FormatInt(userID, 10)] = ids
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("index members marshal: %w", err)
	}
	return b, nil
}

func unmarshalMembers(raw []byte) (map[int64]map[int64]struct{}, error) {
	wire := make(map[string][]int64)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("index members unmarshal: %w", err)
		}
	}

	members := make(map[int64]map[int64]struct{}, len(wire))
	for key, ids := range wire {
		userID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index members key %q: %w", key, err)
		}
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		members[userID] = set
	}
	return members, nil
}
