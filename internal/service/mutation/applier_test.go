package mutation

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
	"github.com/finbook/event-pipeline-service/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustGet(t *testing.T, store storage.CategoryIndexStore, categoryID int64) *model.CategoryIndex {
	t.Helper()
	idx, err := store.Get(context.Background(), categoryID)
	if err != nil {
		t.Fatalf("get category %d: %v", categoryID, err)
	}
	return idx
}

func TestApplyBatchOrdering(t *testing.T) {
	store := memory.NewIndexStore()
	applier := NewApplier(store, testLogger())

	// ADD then REMOVE of the same member must leave the set without it.
	batch := []*event.CategoryExpenseEvent{
		event.NewCategoryExpenseEvent(1, 5, 10, event.MutationAdd),
		event.NewCategoryExpenseEvent(1, 5, 11, event.MutationAdd),
		event.NewCategoryExpenseEvent(1, 5, 10, event.MutationRemove),
	}

	if err := applier.ApplyBatch(context.Background(), batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	idx := mustGet(t, store, 5)
	if idx.Has(1, 10) {
		t.Error("expense 10 still present after REMOVE")
	}
	if !idx.Has(1, 11) {
		t.Error("expense 11 missing")
	}
}

func TestApplyBatchIsIdempotent(t *testing.T) {
	store := memory.NewIndexStore()
	applier := NewApplier(store, testLogger())

	batch := []*event.CategoryExpenseEvent{
		event.NewCategoryExpenseEvent(1, 5, 10, event.MutationAdd),
		event.NewCategoryExpenseEvent(2, 5, 20, event.MutationAdd),
		event.NewCategoryExpenseEvent(1, 6, 10, event.MutationRemove),
	}

	// Redelivery of the same batch converges to the same state.
	for i := 0; i < 3; i++ {
		if err := applier.ApplyBatch(context.Background(), batch); err != nil {
			t.Fatalf("apply #%d: %v", i+1, err)
		}
	}

	idx := mustGet(t, store, 5)
	if !idx.Has(1, 10) || !idx.Has(2, 20) {
		t.Error("members missing after redelivery")
	}
	if len(idx.Members[1]) != 1 || len(idx.Members[2]) != 1 {
		t.Errorf("duplicate members after redelivery: %v", idx.Members)
	}
}

func TestApplyBatchSkipsMalformedEvents(t *testing.T) {
	store := memory.NewIndexStore()
	applier := NewApplier(store, testLogger())

	batch := []*event.CategoryExpenseEvent{
		event.NewCategoryExpenseEvent(1, 5, 10, event.MutationAdd),
		{EventID: "broken", UserID: 1}, // no category, no expense
		nil,
		event.NewCategoryExpenseEvent(1, 5, 11, event.MutationAdd),
	}

	if err := applier.ApplyBatch(context.Background(), batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	idx := mustGet(t, store, 5)
	if !idx.Has(1, 10) || !idx.Has(1, 11) {
		t.Error("valid events around the malformed one were not applied")
	}
}

func TestApplyBatchUpdateBehavesLikeAdd(t *testing.T) {
	store := memory.NewIndexStore()
	applier := NewApplier(store, testLogger())

	batch := []*event.CategoryExpenseEvent{
		event.NewCategoryExpenseEvent(1, 5, 10, event.MutationUpdate),
	}
	if err := applier.ApplyBatch(context.Background(), batch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !mustGet(t, store, 5).Has(1, 10) {
		t.Error("UPDATE did not ensure membership")
	}
}

// conflictingStore injects version conflicts on the first n BulkPut calls,
// mutating the underlying aggregate in between like a concurrent writer.
type conflictingStore struct {
	*memory.IndexStore
	conflictsLeft int
	interfere     func()
	puts          int
}

func (s *conflictingStore) BulkPut(ctx context.Context, indexes []*model.CategoryIndex) error {
	s.puts++
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		if s.interfere != nil {
			s.interfere()
		}
		ids := make([]int64, 0, len(indexes))
		for _, idx := range indexes {
			ids = append(ids, idx.CategoryID)
		}
		return &storage.VersionConflictError{CategoryIDs: ids}
	}
	return s.IndexStore.BulkPut(ctx, indexes)
}

func TestApplyBatchRetriesOnVersionConflict(t *testing.T) {
	inner := memory.NewIndexStore()

	// A concurrent writer lands expense 99 between our load and first write.
	store := &conflictingStore{
		IndexStore:    inner,
		conflictsLeft: 1,
		interfere: func() {
			seeded := model.NewCategoryIndex(5)
			seeded.Add(9, 99)
			seeded.Version = 1
			inner.Seed(seeded)
		},
	}
	applier := NewApplier(store, testLogger())

	batch := []*event.CategoryExpenseEvent{
		event.NewCategoryExpenseEvent(1, 5, 10, event.MutationAdd),
		event.NewCategoryExpenseEvent(1, 5, 11, event.MutationAdd),
	}

	if err := applier.ApplyBatch(context.Background(), batch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if store.puts != 2 {
		t.Errorf("BulkPut calls = %d, want 2 (conflict then success)", store.puts)
	}

	// The retry re-applied the whole list on top of the reloaded aggregate.
	idx := mustGet(t, inner, 5)
	if !idx.Has(1, 10) || !idx.Has(1, 11) {
		t.Error("batch mutations lost across retry")
	}
	if !idx.Has(9, 99) {
		t.Error("concurrent writer's member lost across retry")
	}
}

func TestApplyBatchExhaustsRetryBudget(t *testing.T) {
	store := &conflictingStore{
		IndexStore:    memory.NewIndexStore(),
		conflictsLeft: maxWriteAttempts,
	}
	applier := NewApplier(store, testLogger())

	batch := []*event.CategoryExpenseEvent{
		event.NewCategoryExpenseEvent(1, 5, 10, event.MutationAdd),
	}

	err := applier.ApplyBatch(context.Background(), batch)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("unexpected error: %v", err)
	}
	if store.puts != maxWriteAttempts {
		t.Errorf("BulkPut calls = %d, want %d", store.puts, maxWriteAttempts)
	}
}

func TestApplyBatchEmptyAfterNormalization(t *testing.T) {
	store := memory.NewIndexStore()
	applier := NewApplier(store, testLogger())

	batch := []*event.CategoryExpenseEvent{
		nil,
		{EventID: "broken"},
	}
	if err := applier.ApplyBatch(context.Background(), batch); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
}
