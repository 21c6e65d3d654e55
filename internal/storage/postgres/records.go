package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Interface guards
var (
	_ storage.AuditStore        = (*AuditLog)(nil)
	_ storage.NotificationStore = (*NotificationLog)(nil)
	_ storage.FriendFeedStore   = (*FriendFeed)(nil)
)

// AuditLog appends audit records. The unique event_id constraint absorbs
// broker redelivery: a duplicate append is a silent no-op.
type AuditLog struct {
	db *DB
}

func NewAuditLog(db *DB) *AuditLog { return &AuditLog{db: db} }

func (s *AuditLog) Append(ctx context.Context, rec *model.AuditRecord) error {
	oldVals, err := json.Marshal(rec.OldValues)
	if err != nil {
		return fmt.Errorf("audit old values: %w", err)
	}
	newVals, err := json.Marshal(rec.NewValues)
	if err != nil {
		return fmt.Errorf("audit new values: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx,
		`INSERT INTO audit_log
		   (id, event_id, correlation_id, actor_id, actor_name, target_id,
		    entity_type, entity_id, action, amount, old_values, new_values,
		    source_service, occurred_at, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (event_id) DO NOTHING`,
		rec.ID, rec.EventID, rec.CorrelationID, rec.ActorID, rec.ActorName,
		rec.TargetID, string(rec.EntityType), rec.EntityID, string(rec.Action),
		rec.Amount, oldVals, newVals, rec.SourceService, rec.OccurredAt, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

// NotificationLog appends notification records, idempotent per event.
type NotificationLog struct {
	db *DB
}

func NewNotificationLog(db *DB) *NotificationLog { return &NotificationLog{db: db} }

func (s *NotificationLog) Append(ctx context.Context, n *model.Notification) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO notifications
		   (id, user_id, event_id, entity_type, entity_id, action, created_at, read)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		n.ID, n.UserID, n.EventID, string(n.EntityType), n.EntityID,
		string(n.Action), n.CreatedAt, n.Read)
	if err != nil {
		return fmt.Errorf("notification append: %w", err)
	}
	return nil
}

// FriendFeed appends friend-activity entries, idempotent per (event, owner).
type FriendFeed struct {
	db *DB
}

func NewFriendFeed(db *DB) *FriendFeed { return &FriendFeed{db: db} }

func (s *FriendFeed) Append(ctx context.Context, fa *model.FriendActivity) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO friend_feed
		   (id, event_id, owner_id, actor_id, actor_name, entity_type, entity_id,
		    action, amount, occurred_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (event_id, owner_id) DO NOTHING`,
		fa.ID, fa.EventID, fa.OwnerID, fa.ActorID, fa.ActorName, string(fa.EntityType),
		fa.EntityID, string(fa.Action), fa.Amount, fa.OccurredAt, fa.CreatedAt)
	if err != nil {
		return fmt.Errorf("friend feed append: %w", err)
	}
	return nil
}
