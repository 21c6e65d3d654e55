package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// maxWriteAttempts bounds the reload-and-reapply loop on version conflicts.
const maxWriteAttempts = 3

// Applier applies ordered batches of set-mutation events to category
// aggregates with bounded optimistic-concurrency retry.
//
// Everything here is idempotent: ADD and REMOVE are safe to re-apply, so a
// redelivered batch (after a crash or retry exhaustion) converges to the
// same state.
type Applier struct {
	store  storage.CategoryIndexStore
	logger *slog.Logger
}

func NewApplier(store storage.CategoryIndexStore, logger *slog.Logger) *Applier {
	return &Applier{store: store, logger: logger}
}

// ApplyBatch processes one delivered batch in order.
//
// Malformed events are skipped and logged; they never fail the batch. A
// version conflict reloads only the conflicting aggregates, then re-applies
// the ENTIRE normalized mutation list — later events may depend on set state
// changed by the reload. Exhausting the retry budget fails the whole batch
// so the broker redelivers it.
func (a *Applier) ApplyBatch(ctx context.Context, events []*event.CategoryExpenseEvent) error {
	normalized := a.normalize(events)
	if len(normalized) == 0 {
		return nil
	}

	ids := distinctCategoryIDs(normalized)

	working, err := a.load(ctx, ids)
	if err != nil {
		return err
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		applyAll(working, normalized)

		touched := make([]*model.CategoryIndex, 0, len(working))
		for _, id := range ids {
			touched = append(touched, working[id])
		}

		err := a.store.BulkPut(ctx, touched)
		if err == nil {
			return nil
		}

		vc, isConflict := storage.AsVersionConflict(err)
		if !isConflict {
			return fmt.Errorf("mutation batch: persist: %w", err)
		}
		if attempt == maxWriteAttempts {
			return fmt.Errorf("mutation batch: retries exhausted after %d attempts: %w", attempt, err)
		}

		a.logger.Warn("MUTATION_VERSION_CONFLICT",
			"attempt", attempt,
			"categories", vc.CategoryIDs,
		)

		for _, id := range vc.CategoryIDs {
			fresh, err := a.reload(ctx, id)
			if err != nil {
				return err
			}
			working[id] = fresh
		}
	}

	// Unreachable: the loop returns on success or exhaustion.
	return nil
}

// normalize coerces the batch into canonical mutations, skipping events that
// cannot be keyed to an aggregate entry.
func (a *Applier) normalize(events []*event.CategoryExpenseEvent) []event.CategoryExpenseEvent {
	normalized := make([]event.CategoryExpenseEvent, 0, len(events))
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := ev.Validate(); err != nil {
			a.logger.Warn("MUTATION_SKIPPED",
				"event_id", ev.EventID,
				"err", err,
			)
			continue
		}
		normalized = append(normalized, ev.Normalized())
	}
	return normalized
}

// load bulk-reads the affected aggregates, falling back to point lookups for
// ids the bulk read missed — the storage layer may serve slightly stale bulk
// results right after a write. Ids that exist nowhere start as fresh
// aggregates at version zero.
func (a *Applier) load(ctx context.Context, ids []int64) (map[int64]*model.CategoryIndex, error) {
	working, err := a.store.BulkGet(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("mutation batch: bulk load: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := working[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return working, nil
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	for _, id := range missing {
		id := id
		g.Go(func() error {
			idx, err := a.store.Get(gCtx, id)
			if errors.Is(err, storage.ErrNotFound) {
				idx = model.NewCategoryIndex(id)
			} else if err != nil {
				return fmt.Errorf("mutation batch: fallback load %d: %w", id, err)
			}
			mu.Lock()
			working[id] = idx
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return working, nil
}

func (a *Applier) reload(ctx context.Context, id int64) (*model.CategoryIndex, error) {
	idx, err := a.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.NewCategoryIndex(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("mutation batch: reload %d: %w", id, err)
	}
	return idx, nil
}

// applyAll walks the normalized list in batch order. UPDATE ensures
// membership the same way ADD does; the set carries no further state to
// update.
func applyAll(working map[int64]*model.CategoryIndex, normalized []event.CategoryExpenseEvent) {
	for _, ev := range normalized {
		idx := working[ev.CategoryID]
		switch ev.Action {
		case event.MutationRemove:
			idx.Remove(ev.UserID, ev.ExpenseID)
		default: // ADD, UPDATE
			idx.Add(ev.UserID, ev.ExpenseID)
		}
	}
}

func distinctCategoryIDs(normalized []event.CategoryExpenseEvent) []int64 {
	seen := make(map[int64]struct{}, len(normalized))
	ids := make([]int64, 0, len(normalized))
	for _, ev := range normalized {
		if _, ok := seen[ev.CategoryID]; ok {
			continue
		}
		seen[ev.CategoryID] = struct{}{}
		ids = append(ids, ev.CategoryID)
	}
	return ids
}
