package model

// CategoryIndex is the denormalized category→expense-id aggregate kept
// eventually consistent by the mutation batch consumer.
//
// Members maps a user id to the set of that user's expense ids filed under
// the category. The Version field backs optimistic concurrency on writes.
type CategoryIndex struct {
	CategoryID int64
	Members    map[int64]map[int64]struct{}
	Version    int64
}

func NewCategoryIndex(categoryID int64) *CategoryIndex {
	return &CategoryIndex{
		CategoryID: categoryID,
		Members:    make(map[int64]map[int64]struct{}),
	}
}

// Add inserts an expense id into the user's member set. Duplicate adds are
// no-ops, which keeps re-applied batches idempotent.
func (x *CategoryIndex) Add(userID, expenseID int64) {
	set, ok := x.Members[userID]
	if !ok {
		set = make(map[int64]struct{})
		x.Members[userID] = set
	}
	set[expenseID] = struct{}{}
}

// Remove deletes an expense id from the user's member set. An empty
// resulting set removes the per-user entry entirely to keep the aggregate
// compact. Removing an absent member is a no-op.
func (x *CategoryIndex) Remove(userID, expenseID int64) {
	set, ok := x.Members[userID]
	if !ok {
		return
	}
	delete(set, expenseID)
	if len(set) == 0 {
		delete(x.Members, userID)
	}
}

// Has reports membership of one expense id for one user.
func (x *CategoryIndex) Has(userID, expenseID int64) bool {
	set, ok := x.Members[userID]
	if !ok {
		return false
	}
	_, ok = set[expenseID]
	return ok
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// working copies without aliasing persisted state.
func (x *CategoryIndex) Clone() *CategoryIndex {
	cp := &CategoryIndex{
		CategoryID: x.CategoryID,
		Members:    make(map[int64]map[int64]struct{}, len(x.Members)),
		Version:    x.Version,
	}
	for userID, set := range x.Members {
		cpSet := make(map[int64]struct{}, len(set))
		for id := range set {
			cpSet[id] = struct{}{}
		}
		cp.Members[userID] = cpSet
	}
	return cp
}
