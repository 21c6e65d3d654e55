package memory

import (
	"context"
	"sync"

	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Interface guard
var _ storage.BudgetStore = (*BudgetStore)(nil)

// BudgetStore is the in-process budget store for tests and local runs.
type BudgetStore struct {
	mu      sync.RWMutex
	nextID  int64
	budgets map[int64]*model.Budget
}

func NewBudgetStore() *BudgetStore {
	return &BudgetStore{nextID: 1, budgets: make(map[int64]*model.Budget)}
}

func (s *BudgetStore) Get(_ context.Context, id int64) (*model.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.budgets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneBudget(b), nil
}

func (s *BudgetStore) GetByOldID(_ context.Context, userID, oldID int64) (*model.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.budgets {
		if b.UserID == userID && b.OldID == oldID && oldID != 0 {
			return cloneBudget(b), nil
		}
	}
	return nil, storage.ErrNotFound
}

// Create stores the budget. A pre-set id (the authoritative id minted by
// the budget service) is honored; a zero id gets a locally assigned one.
func (s *BudgetStore) Create(_ context.Context, b *model.Budget) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == 0 {
		b.ID = s.nextID
	}
	if b.ID >= s.nextID {
		s.nextID = b.ID + 1
	}
	s.budgets[b.ID] = cloneBudget(b)
	return b.ID, nil
}

func (s *BudgetStore) Update(_ context.Context, b *model.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.budgets[b.ID]; !ok {
		return storage.ErrNotFound
	}
	s.budgets[b.ID] = cloneBudget(b)
	return nil
}

func (s *BudgetStore) FindByExpense(_ context.Context, userID, expenseID int64) ([]*model.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*model.Budget
	for _, b := range s.budgets {
		if b.UserID == userID && b.HasExpense(expenseID) {
			res = append(res, cloneBudget(b))
		}
	}
	return res, nil
}

func cloneBudget(b *model.Budget) *model.Budget {
	cp := *b
	cp.ExpenseIDs = make(map[int64]struct{}, len(b.ExpenseIDs))
	for id := range b.ExpenseIDs {
		cp.ExpenseIDs[id] = struct{}{}
	}
	return &cp
}
