package linking

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
	"github.com/finbook/event-pipeline-service/internal/storage/memory"
)

type fixture struct {
	svc      *Service
	mappings *memory.MappingStore
	budgets  *memory.BudgetStore
}

func newFixture() *fixture {
	mappings := memory.NewMappingStore()
	budgets := memory.NewBudgetStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		svc:      NewService(mappings, budgets, logger),
		mappings: mappings,
		budgets:  budgets,
	}
}

func (f *fixture) handle(t *testing.T, ev *event.LinkingEvent) {
	t.Helper()
	if err := f.svc.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle %s: %v", ev.Type, err)
	}
}

func expenseWithOldBudgets(userID, oldExpense, newExpense int64, oldBudgets ...int64) *event.LinkingEvent {
	ev := event.NewLinkingEvent(event.ExpenseCreatedWithOldBudgets, userID)
	ev.OldExpenseID = oldExpense
	ev.NewExpenseID = newExpense
	ev.OldBudgetIDs = oldBudgets
	return ev
}

func budgetWithOldExpenses(userID, oldBudget, newBudget int64, details *event.BudgetDetails) *event.LinkingEvent {
	ev := event.NewLinkingEvent(event.BudgetCreatedWithOldExpenses, userID)
	ev.OldBudgetID = oldBudget
	ev.NewBudgetID = newBudget
	ev.BudgetDetails = details
	return ev
}

// The budget and the expense referencing each other can arrive in either
// order; both interleavings must converge to the same linked state.
func TestLinkingIsOrderIndependent(t *testing.T) {
	budgetEv := func() *event.LinkingEvent {
		return budgetWithOldExpenses(12, 77, 501, &event.BudgetDetails{
			Name:          "groceries",
			Amount:        250,
			OldExpenseIDs: []int64{1001},
		})
	}
	expenseEv := func() *event.LinkingEvent {
		return expenseWithOldBudgets(12, 1001, 9001, 77)
	}

	orders := []struct {
		name   string
		events []*event.LinkingEvent
	}{
		{"budget first", []*event.LinkingEvent{budgetEv(), expenseEv()}},
		{"expense first", []*event.LinkingEvent{expenseEv(), budgetEv()}},
	}

	for _, order := range orders {
		t.Run(order.name, func(t *testing.T) {
			f := newFixture()
			for _, ev := range order.events {
				f.handle(t, ev)
			}

			budget, err := f.budgets.Get(context.Background(), 501)
			if err != nil {
				t.Fatalf("budget 501 not materialized: %v", err)
			}
			if budget.OldID != 77 {
				t.Errorf("budget old id = %d, want 77", budget.OldID)
			}
			if budget.Name != "groceries" || budget.Amount != 250 {
				t.Errorf("budget details not applied: %+v", budget)
			}
			if !budget.HasExpense(9001) {
				t.Errorf("expense 9001 not linked, members %v", budget.ExpenseIDs)
			}

			newID, ok, err := f.mappings.Lookup(context.Background(), event.EntityExpense, 1001)
			if err != nil || !ok || newID != 9001 {
				t.Errorf("expense mapping 1001 -> (%d, %v, %v), want 9001", newID, ok, err)
			}
		})
	}
}

// A replayed BUDGET_CREATED event for the same old id must reuse the budget
// already materialized, never create a second one.
func TestDuplicateBudgetCreationIsGuarded(t *testing.T) {
	f := newFixture()

	first := budgetWithOldExpenses(12, 77, 501, &event.BudgetDetails{
		Name: "groceries", Amount: 250, OldExpenseIDs: []int64{1001},
	})
	second := budgetWithOldExpenses(12, 77, 502, &event.BudgetDetails{
		Name: "groceries", Amount: 250, OldExpenseIDs: []int64{1002},
	})

	f.handle(t, expenseWithOldBudgets(12, 1001, 9001, 77))
	f.handle(t, expenseWithOldBudgets(12, 1002, 9002, 77))
	f.handle(t, first)
	f.handle(t, second)

	if _, err := f.budgets.Get(context.Background(), 502); err == nil {
		t.Error("duplicate event materialized a second budget")
	}

	budget, err := f.budgets.Get(context.Background(), 501)
	if err != nil {
		t.Fatalf("budget 501: %v", err)
	}
	// The duplicate still contributes its member links to the original.
	if !budget.HasExpense(9001) || !budget.HasExpense(9002) {
		t.Errorf("members not unioned across duplicate events: %v", budget.ExpenseIDs)
	}
}

// An expense referencing a budget that never materializes is deferred, not
// failed: the mapping is recorded and no error escapes.
func TestDanglingBudgetReferenceIsDeferred(t *testing.T) {
	f := newFixture()

	f.handle(t, expenseWithOldBudgets(12, 1001, 9001, 999))

	newID, ok, err := f.mappings.Lookup(context.Background(), event.EntityExpense, 1001)
	if err != nil || !ok || newID != 9001 {
		t.Errorf("expense mapping not recorded: (%d, %v, %v)", newID, ok, err)
	}
}

func TestExpenseWithExistingBudgetsReplacesPlaceholder(t *testing.T) {
	f := newFixture()

	// A budget created earlier optimistically holds the old expense id.
	budget := model.NewBudget(12, "travel", 800)
	budget.AddExpense(1001)
	id, err := f.budgets.Create(context.Background(), budget)
	if err != nil {
		t.Fatalf("seed budget: %v", err)
	}

	ev := event.NewLinkingEvent(event.ExpenseCreatedWithExistingBudgets, 12)
	ev.OldExpenseID = 1001
	ev.NewExpenseID = 9001
	ev.NewBudgetIDs = []int64{id}
	f.handle(t, ev)

	got, err := f.budgets.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if got.HasExpense(1001) {
		t.Error("placeholder 1001 still attached")
	}
	if !got.HasExpense(9001) {
		t.Errorf("authoritative id 9001 not attached: %v", got.ExpenseIDs)
	}
}

func TestExpenseWithExistingBudgetsFallsBackToSearch(t *testing.T) {
	f := newFixture()

	budget := model.NewBudget(12, "travel", 800)
	budget.AddExpense(1001)
	id, err := f.budgets.Create(context.Background(), budget)
	if err != nil {
		t.Fatalf("seed budget: %v", err)
	}

	// No budget ids shipped: the consumer searches by placeholder membership.
	ev := event.NewLinkingEvent(event.ExpenseCreatedWithExistingBudgets, 12)
	ev.OldExpenseID = 1001
	ev.NewExpenseID = 9001
	f.handle(t, ev)

	got, err := f.budgets.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if got.HasExpense(1001) || !got.HasExpense(9001) {
		t.Errorf("placeholder swap failed: %v", got.ExpenseIDs)
	}
}

func TestLinkUpdateIsNoOp(t *testing.T) {
	f := newFixture()

	ev := event.NewLinkingEvent(event.BudgetExpenseLinkUpdate, 12)
	ev.OldExpenseID = 1001
	f.handle(t, ev)

	if _, err := f.budgets.Get(context.Background(), 1); err != storage.ErrNotFound {
		t.Errorf("no-op transition touched storage: %v", err)
	}
}

func TestHandleRejectsInvalidEvent(t *testing.T) {
	f := newFixture()

	ev := &event.LinkingEvent{EventID: "x", Type: event.BudgetExpenseLinkUpdate} // no user
	if err := f.svc.Handle(context.Background(), ev); err == nil {
		t.Fatal("event without owner accepted")
	}
}
