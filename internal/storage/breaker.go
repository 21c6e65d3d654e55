package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/finbook/event-pipeline-service/internal/domain/model"
)

// Interface guard
var _ CategoryIndexStore = (*BreakerIndexStore)(nil)

// BreakerIndexStore wraps a CategoryIndexStore with a circuit breaker so a
// struggling storage backend sheds load instead of stacking up batch
// retries. An open breaker fails the batch, which is safe: the batch is
// nacked and redelivered once the backend recovers.
type BreakerIndexStore struct {
	next CategoryIndexStore
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerIndexStore(next CategoryIndexStore) *BreakerIndexStore {
	return &BreakerIndexStore{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "category-index-store",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Version conflicts and missing rows are domain outcomes, not
			// backend health signals.
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				if _, ok := AsVersionConflict(err); ok {
					return true
				}
				return errors.Is(err, ErrNotFound)
			},
		}),
	}
}

func (s *BreakerIndexStore) BulkGet(ctx context.Context, categoryIDs []int64) (map[int64]*model.CategoryIndex, error) {
	res, err := s.cb.Execute(func() (any, error) {
		return s.next.BulkGet(ctx, categoryIDs)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[int64]*model.CategoryIndex), nil
}

func (s *BreakerIndexStore) Get(ctx context.Context, categoryID int64) (*model.CategoryIndex, error) {
	res, err := s.cb.Execute(func() (any, error) {
		return s.next.Get(ctx, categoryID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*model.CategoryIndex), nil
}

func (s *BreakerIndexStore) BulkPut(ctx context.Context, indexes []*model.CategoryIndex) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.next.BulkPut(ctx, indexes)
	})
	return err
}
