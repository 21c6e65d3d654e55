package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
)

// ErrNotFound is returned by point lookups that match nothing.
var ErrNotFound = errors.New("storage: not found")

// VersionConflictError reports the aggregates whose optimistic version check
// failed during a bulk write. The write is all-or-nothing: nothing was
// persisted when this error is returned.
type VersionConflictError struct {
	CategoryIDs []int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("storage: version conflict on categories %v", e.CategoryIDs)
}

// AsVersionConflict unwraps a version conflict from an error chain.
func AsVersionConflict(err error) (*VersionConflictError, bool) {
	var vc *VersionConflictError
	ok := errors.As(err, &vc)
	return vc, ok
}

// CategoryIndexStore is the aggregate store behind the mutation batch
// consumer: bulk-get, per-id fallback get, bulk-put with version check.
type CategoryIndexStore interface {
	// BulkGet loads the given aggregates in one read. Missing ids are simply
	// absent from the result, not an error.
	BulkGet(ctx context.Context, categoryIDs []int64) (map[int64]*model.CategoryIndex, error)
	// Get is the point-lookup fallback for ids missed by BulkGet.
	Get(ctx context.Context, categoryID int64) (*model.CategoryIndex, error)
	// BulkPut persists all aggregates, guarded by their versions. New
	// aggregates (version 0, unseen id) are inserted.
	BulkPut(ctx context.Context, indexes []*model.CategoryIndex) error
}

// IDMappingStore is the append-only old-id→new-id translation table.
type IDMappingStore interface {
	// Lookup resolves an old id. The second return is false when no mapping
	// exists yet — an expected state, not an error.
	Lookup(ctx context.Context, entity event.EntityType, oldID int64) (int64, bool, error)
	// Record stores a mapping. First write wins; re-recording the same old
	// id is a no-op so redelivered events stay idempotent.
	Record(ctx context.Context, m model.IDMapping) error
}

// BudgetStore holds the budgets owned by the linking consumer.
type BudgetStore interface {
	Get(ctx context.Context, id int64) (*model.Budget, error)
	// GetByOldID is the duplicate-creation guard: it finds a budget already
	// materialized from the same prior-system id.
	GetByOldID(ctx context.Context, userID, oldID int64) (*model.Budget, error)
	// Create assigns and returns the new budget id.
	Create(ctx context.Context, b *model.Budget) (int64, error)
	Update(ctx context.Context, b *model.Budget) error
	// FindByExpense returns the user's budgets whose member set contains the
	// given expense id (old placeholder or current).
	FindByExpense(ctx context.Context, userID, expenseID int64) ([]*model.Budget, error)
}

// AuditStore receives the audit consumer's records.
type AuditStore interface {
	Append(ctx context.Context, rec *model.AuditRecord) error
}

// NotificationStore receives the notification consumer's records.
type NotificationStore interface {
	Append(ctx context.Context, n *model.Notification) error
}

// FriendFeedStore receives friend-activity feed entries.
type FriendFeedStore interface {
	Append(ctx context.Context, fa *model.FriendActivity) error
}
