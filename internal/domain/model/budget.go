package model

import "time"

// Budget is the locally-owned budget aggregate maintained by the linking
// consumer. OldID carries the prior system's identifier when the budget was
// materialized from a migration event; zero otherwise.
type Budget struct {
	ID         int64
	OldID      int64
	UserID     int64
	Name       string
	Amount     float64
	StartDate  time.Time
	EndDate    time.Time
	ExpenseIDs map[int64]struct{}
	CreatedAt  time.Time
}

func NewBudget(userID int64, name string, amount float64) *Budget {
	return &Budget{
		UserID:     userID,
		Name:       name,
		Amount:     amount,
		ExpenseIDs: make(map[int64]struct{}),
		CreatedAt:  time.Now().UTC(),
	}
}

// AddExpense attaches an expense id to the budget's member set.
// Duplicate attachment is a no-op.
func (b *Budget) AddExpense(expenseID int64) {
	if b.ExpenseIDs == nil {
		b.ExpenseIDs = make(map[int64]struct{})
	}
	b.ExpenseIDs[expenseID] = struct{}{}
}

// ReplaceExpense swaps an old-system expense placeholder for the
// authoritative new id. Reports whether the placeholder was present.
func (b *Budget) ReplaceExpense(oldID, newID int64) bool {
	if _, ok := b.ExpenseIDs[oldID]; !ok {
		return false
	}
	delete(b.ExpenseIDs, oldID)
	b.ExpenseIDs[newID] = struct{}{}
	return true
}

// HasExpense reports membership of one expense id.
func (b *Budget) HasExpense(expenseID int64) bool {
	_, ok := b.ExpenseIDs[expenseID]
	return ok
}
