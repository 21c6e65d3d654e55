package event

import (
	"strconv"

	"github.com/google/uuid"
)

// Interface guard
var _ Eventer = (*ActivityEvent)(nil)

// EntityType identifies the aggregate an activity touched.
type EntityType string

const (
	EntityExpense       EntityType = "EXPENSE"
	EntityBudget        EntityType = "BUDGET"
	EntityCategory      EntityType = "CATEGORY"
	EntityBill          EntityType = "BILL"
	EntityPaymentMethod EntityType = "PAYMENT_METHOD"
	EntityUser          EntityType = "USER"
	EntityFriendship    EntityType = "FRIENDSHIP"
)

// ActivityAction is the verb of a unified activity event.
type ActivityAction string

const (
	ActionCreate ActivityAction = "CREATE"
	ActionUpdate ActivityAction = "UPDATE"
	ActionDelete ActivityAction = "DELETE"
	ActionView   ActivityAction = "VIEW"
	ActionLogin  ActivityAction = "LOGIN"
	ActionLogout ActivityAction = "LOGOUT"
)

// ServiceInfo describes the producing service. Filled in at enrichment time
// when the event itself left the fields empty.
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
}

// ActivityEvent is the single broad event published once per mutating
// operation anywhere in the tracker.
//
// [STRATEGY]
// There is no central dispatcher: audit, notification and friend-activity
// consumers each subscribe to the same topic and apply their own predicate.
// The routing flags are computed exactly once, at enrichment time, and
// consumers trust them as-is. Adding a downstream concern means adding a
// consumer with its own predicate, never touching the producer.
type ActivityEvent struct {
	EventID    string `json:"event_id"`
	OccurredAt int64  `json:"occurred_at"`

	ActorID   int64  `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
	TargetID  int64  `json:"target_id"`

	EntityType EntityType     `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	Action     ActivityAction `json:"action"`
	Amount     *float64       `json:"amount,omitempty"`

	// Opaque before/after snapshots. Consumers never interpret them beyond
	// persisting and rendering.
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`

	SourceService string `json:"source_service,omitempty"`
	SourceVersion string `json:"source_version,omitempty"`
	Environment   string `json:"environment,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`

	// Routing flags. Derived flags are set by Enrich; RequiresAudit and
	// RequiresNotification are producer-set and default to true.
	IsOwnAction          bool `json:"is_own_action"`
	IsFriendActivity     bool `json:"is_friend_activity"`
	RequiresAudit        bool `json:"requires_audit"`
	RequiresNotification bool `json:"requires_notification"`
}

// NewActivityEvent builds an activity event with identity defaults applied.
func NewActivityEvent(actorID, targetID int64, entity EntityType, entityID int64, action ActivityAction) *ActivityEvent {
	return &ActivityEvent{
		EventID:              uuid.NewString(),
		OccurredAt:           nowMillis(),
		ActorID:              actorID,
		TargetID:             targetID,
		EntityType:           entity,
		EntityID:             entityID,
		Action:               action,
		RequiresAudit:        true,
		RequiresNotification: true,
	}
}

// Enrich stamps the producing service identity (only where unset) and
// computes the derived routing flags from actor/target identity.
// Must be called exactly once, before publish; consumers never recompute.
func (e *ActivityEvent) Enrich(src ServiceInfo) {
	if e.SourceService == "" {
		e.SourceService = src.Name
	}
	if e.SourceVersion == "" {
		e.SourceVersion = src.Version
	}
	if e.Environment == "" {
		e.Environment = src.Environment
	}
	if e.CorrelationID == "" {
		e.CorrelationID = e.EventID
	}

	e.IsOwnAction = e.ActorID == e.TargetID
	e.IsFriendActivity = !e.IsOwnAction
}

func (e *ActivityEvent) GetEventID() string   { return e.EventID }
func (e *ActivityEvent) GetOccurredAt() int64 { return e.OccurredAt }

// GetPartitionKey orders all activity affecting one account relative to
// itself. Falls back to the event id when the target is absent.
func (e *ActivityEvent) GetPartitionKey() string {
	if e.TargetID == 0 {
		return e.EventID
	}
	return strconv.FormatInt(e.TargetID, 10)
}

// ShouldAudit is the audit consumer's predicate.
func (e *ActivityEvent) ShouldAudit() bool { return e.RequiresAudit }

// ShouldNotify is the notification consumer's predicate: only a user's own
// actions produce regular notifications.
func (e *ActivityEvent) ShouldNotify() bool { return e.RequiresNotification && e.IsOwnAction }

// ShouldFanOutToFriends is the friend-activity consumer's predicate.
func (e *ActivityEvent) ShouldFanOutToFriends() bool { return e.IsFriendActivity }

// Validate rejects events missing the identity fields every consumer keys on.
func (e *ActivityEvent) Validate() error {
	if e.EventID == "" {
		return &InvalidEventError{Field: "event_id", Reason: "required"}
	}
	if e.ActorID == 0 {
		return &InvalidEventError{Field: "actor_id", Reason: "required"}
	}
	if e.EntityType == "" {
		return &InvalidEventError{Field: "entity_type", Reason: "required"}
	}
	if e.Action == "" {
		return &InvalidEventError{Field: "action", Reason: "required"}
	}
	return nil
}
