package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Interface guard
var _ storage.BudgetStore = (*BudgetStore)(nil)

// BudgetStore persists budgets with their member expense-id sets as a jsonb
// array, queryable by containment for placeholder replacement.
type BudgetStore struct {
	db *DB
}

func NewBudgetStore(db *DB) *BudgetStore { return &BudgetStore{db: db} }

const budgetColumns = `id, old_id, user_id, name, amount, start_date, end_date, expense_ids, created_at`

func (s *BudgetStore) Get(ctx context.Context, id int64) (*model.Budget, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = $1`, id)
	return scanBudget(row)
}

func (s *BudgetStore) GetByOldID(ctx context.Context, userID, oldID int64) (*model.Budget, error) {
	if oldID == 0 {
		return nil, storage.ErrNotFound
	}
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1 AND old_id = $2 LIMIT 1`,
		userID, oldID)
	return scanBudget(row)
}

// Create inserts the budget. A pre-set id (minted by the budget service) is
// written as-is; losing a create race on it is a no-op because the linking
// consumer re-reads before attaching members. A zero id is assigned by the
// sequence.
func (s *BudgetStore) Create(ctx context.Context, b *model.Budget) (int64, error) {
	ids, err := marshalExpenseIDs(b.ExpenseIDs)
	if err != nil {
		return 0, err
	}

	if b.ID != 0 {
		_, err = s.db.Pool.Exec(ctx,
			`INSERT INTO budgets (id, old_id, user_id, name, amount, start_date, end_date, expense_ids, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO NOTHING`,
			b.ID, b.OldID, b.UserID, b.Name, b.Amount, b.StartDate, b.EndDate, ids, b.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("budget create: %w", err)
		}
		return b.ID, nil
	}

	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO budgets (old_id, user_id, name, amount, start_date, end_date, expense_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		b.OldID, b.UserID, b.Name, b.Amount, b.StartDate, b.EndDate, ids, b.CreatedAt).Scan(&b.ID)
	if err != nil {
		return 0, fmt.Errorf("budget create: %w", err)
	}
	return b.ID, nil
}

func (s *BudgetStore) Update(ctx context.Context, b *model.Budget) error {
	ids, err := marshalExpenseIDs(b.ExpenseIDs)
	if err != nil {
		return err
	}
	ct, err := s.db.Pool.Exec(ctx,
		`UPDATE budgets
		    SET name = $2, amount = $3, start_date = $4, end_date = $5, expense_ids = $6
		  WHERE id = $1`,
		b.ID, b.Name, b.Amount, b.StartDate, b.EndDate, ids)
	if err != nil {
		return fmt.Errorf("budget update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *BudgetStore) FindByExpense(ctx context.Context, userID, expenseID int64) ([]*model.Budget, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+budgetColumns+`
		   FROM budgets
		  WHERE user_id = $1 AND expense_ids @> to_jsonb($2::bigint)`,
		userID, expenseID)
	if err != nil {
		return nil, fmt.Errorf("budget find by expense: %w", err)
	}
	defer rows.Close()

	var res []*model.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func scanBudget(row pgx.Row) (*model.Budget, error) {
	var (
		b   model.Budget
		ids []byte
	)
	err := row.Scan(&b.ID, &b.OldID, &b.UserID, &b.Name, &b.Amount,
		&b.StartDate, &b.EndDate, &ids, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("budget scan: %w", err)
	}

	var list []int64
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &list); err != nil {
			return nil, fmt.Errorf("budget expense ids: %w", err)
		}
	}
	b.ExpenseIDs = make(map[int64]struct{}, len(list))
	for _, id := range list {
		b.ExpenseIDs[id] = struct{}{}
	}
	return &b, nil
}

func marshalExpenseIDs(set map[int64]struct{}) ([]byte, error) {
	list := make([]int64, 0, len(set))
	for id := range set {
		list = append(list, id)
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("budget expense ids marshal: %w", err)
	}
	return b, nil
}
