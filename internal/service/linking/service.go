package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Linker resolves expense↔budget references created in unpredictable order
// across service boundaries.
type Linker interface {
	Handle(ctx context.Context, ev *event.LinkingEvent) error
}

// Service is the concrete linking consumer.
//
// [STRATEGY]
// Neither side of a relationship can assume the other exists yet, so every
// transition attempts direct resolution first and otherwise records an
// id-mapping entry for later. The mapping table is what makes linking
// order-independent without blocking or fixed-delay retries: an unresolved
// reference is not an error, just a mapping that does not exist yet.
type Service struct {
	mappings storage.IDMappingStore
	budgets  storage.BudgetStore
	cache    *lru.Cache[string, int64]
	logger   *slog.Logger
}

func NewService(mappings storage.IDMappingStore, budgets storage.BudgetStore, logger *slog.Logger) *Service {
	// Hot ids repeat heavily during a migration replay; the cache keeps the
	// mapping table off the read path for them.
	cache, _ := lru.New[string, int64](16384)

	return &Service{
		mappings: mappings,
		budgets:  budgets,
		cache:    cache,
		logger:   logger,
	}
}

func (s *Service) Handle(ctx context.Context, ev *event.LinkingEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	switch ev.Type {
	case event.ExpenseCreatedWithOldBudgets:
		return s.onExpenseWithOldBudgets(ctx, ev)
	case event.ExpenseCreatedWithExistingBudgets:
		return s.onExpenseWithExistingBudgets(ctx, ev)
	case event.BudgetCreatedWithOldExpenses:
		return s.onBudgetWithOldExpenses(ctx, ev)
	case event.BudgetExpenseLinkUpdate:
		// Placeholder transition: acknowledged without action.
		s.logger.Debug("LINK_UPDATE_NOOP", "event_id", ev.EventID)
		return nil
	default:
		s.logger.Warn("LINKING_UNKNOWN_TYPE", "event_id", ev.EventID, "type", ev.Type)
		return nil
	}
}

// onExpenseWithOldBudgets: a new expense references budgets still known by
// their prior-system ids. Record the expense id mapping, then link the
// expense into every budget that can already be resolved; the rest stay
// deferred until their BUDGET_CREATED event arrives.
func (s *Service) onExpenseWithOldBudgets(ctx context.Context, ev *event.LinkingEvent) error {
	if ev.OldExpenseID != 0 && ev.NewExpenseID != 0 {
		if err := s.recordMapping(ctx, event.EntityExpense, ev.OldExpenseID, ev.NewExpenseID); err != nil {
			return err
		}
	}
	if ev.NewExpenseID == 0 {
		return nil
	}

	for _, oldBudgetID := range oldBudgetIDs(ev) {
		budget, ok, err := s.resolveBudget(ctx, ev.UserID, oldBudgetID)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Debug("BUDGET_LINK_DEFERRED",
				"event_id", ev.EventID,
				"old_budget_id", oldBudgetID,
				"new_expense_id", ev.NewExpenseID,
			)
			continue
		}

		budget.AddExpense(ev.NewExpenseID)
		if err := s.budgets.Update(ctx, budget); err != nil {
			return fmt.Errorf("linking: attach expense %d to budget %d: %w", ev.NewExpenseID, budget.ID, err)
		}
	}
	return nil
}

// onExpenseWithExistingBudgets: a budget was created first and optimistically
// references old expense ids; swap the placeholder for the authoritative id.
func (s *Service) onExpenseWithExistingBudgets(ctx context.Context, ev *event.LinkingEvent) error {
	if ev.OldExpenseID == 0 || ev.NewExpenseID == 0 {
		return &event.InvalidEventError{Field: "old_expense_id/new_expense_id", Reason: "both required"}
	}
	if err := s.recordMapping(ctx, event.EntityExpense, ev.OldExpenseID, ev.NewExpenseID); err != nil {
		return err
	}

	budgets, err := s.budgetsHoldingPlaceholder(ctx, ev)
	if err != nil {
		return err
	}

	for _, budget := range budgets {
		if !budget.ReplaceExpense(ev.OldExpenseID, ev.NewExpenseID) {
			budget.AddExpense(ev.NewExpenseID)
		}
		if err := s.budgets.Update(ctx, budget); err != nil {
			return fmt.Errorf("linking: replace expense %d->%d in budget %d: %w",
				ev.OldExpenseID, ev.NewExpenseID, budget.ID, err)
		}
	}
	return nil
}

// onBudgetWithOldExpenses materializes (or reuses) a budget and attaches
// every member expense whose id mapping already exists. Unmapped members are
// simply not attached: their EXPENSE_CREATED event will link them later.
func (s *Service) onBudgetWithOldExpenses(ctx context.Context, ev *event.LinkingEvent) error {
	budget, err := s.materializeBudget(ctx, ev)
	if err != nil {
		return err
	}

	if ev.OldBudgetID != 0 {
		if err := s.recordMapping(ctx, event.EntityBudget, ev.OldBudgetID, budget.ID); err != nil {
			return err
		}
	}

	for _, oldExpenseID := range memberOldExpenseIDs(ev) {
		newID, ok, err := s.lookupMapping(ctx, event.EntityExpense, oldExpenseID)
		if err != nil {
			return err
		}
		if !ok {
			continue // no unbounded wait; the counterpart event attaches it
		}
		budget.AddExpense(newID)
	}

	if err := s.budgets.Update(ctx, budget); err != nil {
		return fmt.Errorf("linking: update budget %d: %w", budget.ID, err)
	}
	return nil
}

// materializeBudget applies the duplicate-creation guard, then reuses the
// budget the event points at, or creates one from the shipped skeleton.
func (s *Service) materializeBudget(ctx context.Context, ev *event.LinkingEvent) (*model.Budget, error) {
	if ev.OldBudgetID != 0 {
		existing, err := s.budgets.GetByOldID(ctx, ev.UserID, ev.OldBudgetID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("linking: duplicate guard %d: %w", ev.OldBudgetID, err)
		}
	}

	if ev.NewBudgetID != 0 {
		existing, err := s.budgets.Get(ctx, ev.NewBudgetID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("linking: load budget %d: %w", ev.NewBudgetID, err)
		}
	}

	budget := model.NewBudget(ev.UserID, "", 0)
	budget.ID = ev.NewBudgetID // zero lets the store assign one
	budget.OldID = ev.OldBudgetID
	if d := ev.BudgetDetails; d != nil {
		budget.Name = d.Name
		budget.Amount = d.Amount
		budget.StartDate = parseDate(d.StartDate)
		budget.EndDate = parseDate(d.EndDate)
	}

	if _, err := s.budgets.Create(ctx, budget); err != nil {
		return nil, fmt.Errorf("linking: create budget (old id %d): %w", ev.OldBudgetID, err)
	}
	return budget, nil
}

// resolveBudget finds the current budget for a prior-system id, first by the
// duplicate-guard column, then through the mapping table.
func (s *Service) resolveBudget(ctx context.Context, userID, oldBudgetID int64) (*model.Budget, bool, error) {
	budget, err := s.budgets.GetByOldID(ctx, userID, oldBudgetID)
	if err == nil {
		return budget, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("linking: resolve budget %d: %w", oldBudgetID, err)
	}

	newID, ok, err := s.lookupMapping(ctx, event.EntityBudget, oldBudgetID)
	if err != nil || !ok {
		return nil, false, err
	}

	budget, err = s.budgets.Get(ctx, newID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("linking: load mapped budget %d: %w", newID, err)
	}
	return budget, true, nil
}

func (s *Service) budgetsHoldingPlaceholder(ctx context.Context, ev *event.LinkingEvent) ([]*model.Budget, error) {
	if len(ev.NewBudgetIDs) > 0 {
		res := make([]*model.Budget, 0, len(ev.NewBudgetIDs))
		for _, id := range ev.NewBudgetIDs {
			budget, err := s.budgets.Get(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("LINKING_BUDGET_MISSING", "event_id", ev.EventID, "budget_id", id)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("linking: load budget %d: %w", id, err)
			}
			res = append(res, budget)
		}
		return res, nil
	}

	res, err := s.budgets.FindByExpense(ctx, ev.UserID, ev.OldExpenseID)
	if err != nil {
		return nil, fmt.Errorf("linking: find budgets holding %d: %w", ev.OldExpenseID, err)
	}
	return res, nil
}

func (s *Service) recordMapping(ctx context.Context, entity event.EntityType, oldID, newID int64) error {
	if err := s.mappings.Record(ctx, model.IDMapping{
		EntityType: entity,
		OldID:      oldID,
		NewID:      newID,
	}); err != nil {
		return fmt.Errorf("linking: record mapping %s %d->%d: %w", entity, oldID, newID, err)
	}
	s.cache.Add(mappingCacheKey(entity, oldID), newID)
	return nil
}

func (s *Service) lookupMapping(ctx context.Context, entity event.EntityType, oldID int64) (int64, bool, error) {
	key := mappingCacheKey(entity, oldID)
	if newID, ok := s.cache.Get(key); ok {
		return newID, true, nil
	}

	newID, ok, err := s.mappings.Lookup(ctx, entity, oldID)
	if err != nil {
		return 0, false, fmt.Errorf("linking: lookup mapping %s %d: %w", entity, oldID, err)
	}
	if ok {
		s.cache.Add(key, newID)
	}
	return newID, ok, nil
}

func mappingCacheKey(entity event.EntityType, oldID int64) string {
	return fmt.Sprintf("%s/%d", entity, oldID)
}

func oldBudgetIDs(ev *event.LinkingEvent) []int64 {
	ids := ev.OldBudgetIDs
	if ev.OldBudgetID != 0 {
		ids = append(append([]int64(nil), ids...), ev.OldBudgetID)
	}
	return ids
}

func memberOldExpenseIDs(ev *event.LinkingEvent) []int64 {
	if ev.BudgetDetails != nil && len(ev.BudgetDetails.OldExpenseIDs) > 0 {
		return ev.BudgetDetails.OldExpenseIDs
	}
	if ev.OldExpenseID != 0 {
		return []int64{ev.OldExpenseID}
	}
	return nil
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}
