package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Notifier is the notification consumer: it records a user's own actions so
// the notification service can render them later. Friend activity is a
// different consumer's concern.
type Notifier struct {
	store  storage.NotificationStore
	logger *slog.Logger
}

func NewNotifier(store storage.NotificationStore, logger *slog.Logger) *Notifier {
	return &Notifier{store: store, logger: logger}
}

func (n *Notifier) Process(ctx context.Context, ev *event.ActivityEvent) error {
	if !ev.ShouldNotify() {
		return nil
	}

	rec := &model.Notification{
		ID:         uuid.NewString(),
		UserID:     ev.TargetID,
		EventID:    ev.EventID,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Action:     ev.Action,
		CreatedAt:  time.Now().UTC(),
	}

	if err := n.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("notification: append %s: %w", ev.EventID, err)
	}
	return nil
}
