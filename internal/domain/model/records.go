package model

import (
	"time"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

// IDMapping is one entry of the append-only translation table from a prior
// system's identifier to the current one. Entries are never deleted: old-id
// references may keep arriving for the life of a migrated dataset.
type IDMapping struct {
	EntityType event.EntityType
	OldID      int64
	NewID      int64
	CreatedAt  time.Time
}

// AuditRecord is the downstream record written by the audit consumer.
type AuditRecord struct {
	ID            string
	EventID       string
	CorrelationID string
	ActorID       int64
	ActorName     string
	TargetID      int64
	EntityType    event.EntityType
	EntityID      int64
	Action        event.ActivityAction
	Amount        *float64
	OldValues     map[string]any
	NewValues     map[string]any
	SourceService string
	OccurredAt    int64
	RecordedAt    time.Time
}

// Notification is the record written by the notification consumer for a
// user's own actions. Rendering is a downstream concern.
type Notification struct {
	ID         string
	UserID     int64
	EventID    string
	EntityType event.EntityType
	EntityID   int64
	Action     event.ActivityAction
	CreatedAt  time.Time
	Read       bool
}

// FriendActivity is one friend-feed entry: an action a friend performed on
// the feed owner's data.
type FriendActivity struct {
	ID         string
	EventID    string
	OwnerID    int64 // whose feed the entry belongs to
	ActorID    int64
	ActorName  string
	EntityType event.EntityType
	EntityID   int64
	Action     event.ActivityAction
	Amount     *float64
	OccurredAt int64
	CreatedAt  time.Time
}
