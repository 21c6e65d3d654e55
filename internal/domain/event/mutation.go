package event

import (
	"strconv"

	"github.com/google/uuid"
)

// Interface guard
var _ Eventer = (*CategoryExpenseEvent)(nil)

// MutationAction is the set-mutation verb applied to a keyed aggregate.
type MutationAction string

const (
	MutationAdd    MutationAction = "ADD"
	MutationRemove MutationAction = "REMOVE"
	MutationUpdate MutationAction = "UPDATE"
)

// CategoryExpenseEvent asks the category-index consumer to add or remove one
// expense id from a category's per-user member set.
type CategoryExpenseEvent struct {
	EventID    string         `json:"event_id"`
	OccurredAt int64          `json:"occurred_at"`
	UserID     int64          `json:"user_id"`
	CategoryID int64          `json:"category_id"`
	ExpenseID  int64          `json:"expense_id"`
	Action     MutationAction `json:"action"`
}

// NewCategoryExpenseEvent builds a mutation event for one (category, user, expense).
func NewCategoryExpenseEvent(userID, categoryID, expenseID int64, action MutationAction) *CategoryExpenseEvent {
	return &CategoryExpenseEvent{
		EventID:    uuid.NewString(),
		OccurredAt: nowMillis(),
		UserID:     userID,
		CategoryID: categoryID,
		ExpenseID:  expenseID,
		Action:     action,
	}
}

func (e *CategoryExpenseEvent) GetEventID() string   { return e.EventID }
func (e *CategoryExpenseEvent) GetOccurredAt() int64 { return e.OccurredAt }

// GetPartitionKey keys on the aggregate so all mutations of one category
// arrive in publish order at the batch consumer.
func (e *CategoryExpenseEvent) GetPartitionKey() string {
	return strconv.FormatInt(e.CategoryID, 10)
}

// Normalized returns the canonical form of the mutation.
// An unrecognized action degrades to ADD rather than being rejected; the
// producer fleet predates the UPDATE verb and still emits free-form actions.
func (e *CategoryExpenseEvent) Normalized() CategoryExpenseEvent {
	n := *e
	switch n.Action {
	case MutationAdd, MutationRemove, MutationUpdate:
	default:
		n.Action = MutationAdd
	}
	return n
}

// Validate rejects mutations that cannot be keyed to an aggregate entry.
func (e *CategoryExpenseEvent) Validate() error {
	if e.UserID == 0 {
		return &InvalidEventError{Field: "user_id", Reason: "required"}
	}
	if e.CategoryID == 0 {
		return &InvalidEventError{Field: "category_id", Reason: "required"}
	}
	if e.ExpenseID == 0 {
		return &InvalidEventError{Field: "expense_id", Reason: "required"}
	}
	return nil
}
