package event

import (
	"strconv"

	"github.com/google/uuid"
)

// Interface guard
var _ Eventer = (*LinkingEvent)(nil)

// LinkingEventType enumerates the four transition triggers of the
// expense↔budget linking state machine.
type LinkingEventType string

const (
	// ExpenseCreatedWithOldBudgets: a new expense references budgets still
	// identified by ids minted in the prior system.
	ExpenseCreatedWithOldBudgets LinkingEventType = "EXPENSE_CREATED_WITH_OLD_BUDGETS"
	// ExpenseCreatedWithExistingBudgets: replaces an old expense-id
	// placeholder already attached to current budgets with the new id.
	ExpenseCreatedWithExistingBudgets LinkingEventType = "EXPENSE_CREATED_WITH_EXISTING_BUDGETS"
	// BudgetCreatedWithOldExpenses: a budget skeleton arrives carrying the
	// old expense ids it should contain.
	BudgetCreatedWithOldExpenses LinkingEventType = "BUDGET_CREATED_WITH_OLD_EXPENSES"
	// BudgetExpenseLinkUpdate: bookkeeping signal, acknowledged as a no-op.
	BudgetExpenseLinkUpdate LinkingEventType = "BUDGET_EXPENSE_LINK_UPDATE"
)

// BudgetDetails is the skeleton shipped inside BUDGET_CREATED_WITH_OLD_EXPENSES
// so the linking consumer can materialize a budget that does not exist locally.
type BudgetDetails struct {
	Name          string  `json:"name"`
	Amount        float64 `json:"amount"`
	StartDate     string  `json:"start_date,omitempty"` // RFC 3339 date
	EndDate       string  `json:"end_date,omitempty"`
	OldExpenseIDs []int64 `json:"old_expense_ids,omitempty"`
}

// LinkingEvent describes one expense/budget creation that references
// identifiers from the prior system. Which fields are set depends on Type;
// absent ids are zero.
type LinkingEvent struct {
	EventID    string           `json:"event_id"`
	OccurredAt int64            `json:"occurred_at"`
	Type       LinkingEventType `json:"type"`
	UserID     int64            `json:"user_id"`

	OldExpenseID int64 `json:"old_expense_id,omitempty"`
	NewExpenseID int64 `json:"new_expense_id,omitempty"`
	OldBudgetID  int64 `json:"old_budget_id,omitempty"`
	NewBudgetID  int64 `json:"new_budget_id,omitempty"`

	OldBudgetIDs []int64 `json:"old_budget_ids,omitempty"`
	NewBudgetIDs []int64 `json:"new_budget_ids,omitempty"`

	// Present only when the budget does not yet exist locally.
	BudgetDetails *BudgetDetails `json:"budget_details,omitempty"`
}

// NewLinkingEvent builds an empty-bodied linking event of the given type;
// callers fill in the id fields relevant to it.
func NewLinkingEvent(t LinkingEventType, userID int64) *LinkingEvent {
	return &LinkingEvent{
		EventID:    uuid.NewString(),
		OccurredAt: nowMillis(),
		Type:       t,
		UserID:     userID,
	}
}

func (e *LinkingEvent) GetEventID() string   { return e.EventID }
func (e *LinkingEvent) GetOccurredAt() int64 { return e.OccurredAt }

// GetPartitionKey keys on the owning user: linking events for one user's
// dataset are applied in publish order.
func (e *LinkingEvent) GetPartitionKey() string {
	return strconv.FormatInt(e.UserID, 10)
}

// Validate rejects linking events without a type or owner.
func (e *LinkingEvent) Validate() error {
	if e.Type == "" {
		return &InvalidEventError{Field: "type", Reason: "required"}
	}
	if e.UserID == 0 {
		return &InvalidEventError{Field: "user_id", Reason: "required"}
	}
	return nil
}
