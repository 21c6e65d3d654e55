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

// FriendFeedWriter is the friend-activity consumer: actions performed by
// someone other than the data owner go into the owner's friend feed.
type FriendFeedWriter struct {
	store  storage.FriendFeedStore
	logger *slog.Logger
}

func NewFriendFeedWriter(store storage.FriendFeedStore, logger *slog.Logger) *FriendFeedWriter {
	return &FriendFeedWriter{store: store, logger: logger}
}

func (f *FriendFeedWriter) Process(ctx context.Context, ev *event.ActivityEvent) error {
	if !ev.ShouldFanOutToFriends() {
		return nil
	}

	entry := &model.FriendActivity{
		ID:         uuid.NewString(),
		EventID:    ev.EventID,
		OwnerID:    ev.TargetID,
		ActorID:    ev.ActorID,
		ActorName:  ev.ActorName,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Action:     ev.Action,
		Amount:     ev.Amount,
		OccurredAt: ev.OccurredAt,
		CreatedAt:  time.Now().UTC(),
	}

	if err := f.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("friend feed: append %s: %w", ev.EventID, err)
	}
	return nil
}
