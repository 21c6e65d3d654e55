package producer

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

// Logical topic names. Broker-agnostic: the AMQP layer maps them onto
// exchanges and queue bindings.
const (
	TopicActivity = "unified-activity-events"
	TopicMutation = "category-expense-events"
	TopicLinking  = "expense-budget-linking-events"
)

// NewActivityProducer publishes unified activity events. Enrichment (service
// identity, routing flags) happens in the pre-send hook so every published
// event carries flags computed exactly once.
func NewActivityProducer(pub message.Publisher, src event.ServiceInfo, logger *slog.Logger) (*Producer[*event.ActivityEvent], error) {
	return New(pub, Config[*event.ActivityEvent]{
		Topic:        TopicActivity,
		PartitionKey: (*event.ActivityEvent).GetPartitionKey,
		Validate:     (*event.ActivityEvent).Validate,
		BeforePublish: func(ctx context.Context, ev *event.ActivityEvent) {
			ev.Enrich(src)
			logger.Debug("ACTIVITY_PUBLISH",
				"event_id", ev.EventID,
				"entity", ev.EntityType,
				"action", ev.Action,
			)
		},
	}, logger)
}

// NewCategoryExpenseProducer publishes set-mutation events keyed by category
// so the batch consumer sees one category's mutations in publish order.
func NewCategoryExpenseProducer(pub message.Publisher, logger *slog.Logger) (*Producer[*event.CategoryExpenseEvent], error) {
	return New(pub, Config[*event.CategoryExpenseEvent]{
		Topic:        TopicMutation,
		PartitionKey: (*event.CategoryExpenseEvent).GetPartitionKey,
		Validate:     (*event.CategoryExpenseEvent).Validate,
	}, logger)
}

// NewLinkingProducer publishes expense↔budget linking events keyed by user.
func NewLinkingProducer(pub message.Publisher, logger *slog.Logger) (*Producer[*event.LinkingEvent], error) {
	return New(pub, Config[*event.LinkingEvent]{
		Topic:        TopicLinking,
		PartitionKey: (*event.LinkingEvent).GetPartitionKey,
		Validate:     (*event.LinkingEvent).Validate,
	}, logger)
}
