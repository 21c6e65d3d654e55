package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

// ActivityProcessor is one activity consumer concern (audit, notification,
// friend feed). Each implementation applies its own routing predicate.
type ActivityProcessor interface {
	Process(ctx context.Context, ev *event.ActivityEvent) error
}

// Linker is the linking consumer behind the router.
type Linker interface {
	Handle(ctx context.Context, ev *event.LinkingEvent) error
}

// LaneExecutor serializes work per partition key.
type LaneExecutor interface {
	Execute(ctx context.Context, key string, fn func(context.Context) error) error
}

// OnActivityForAudit feeds the audit trail. Per-target ordering is preserved
// by running each event on the target's lane.
func (h *EventHandlers) OnActivityForAudit() message.NoPublishHandlerFunc {
	return h.activityHandler("audit", h.audit)
}

// OnActivityForNotification records a user's own actions for rendering.
func (h *EventHandlers) OnActivityForNotification() message.NoPublishHandlerFunc {
	return h.activityHandler("notify", h.notifier)
}

// OnActivityForFriendFeed fans friend actions out to the owner's feed.
func (h *EventHandlers) OnActivityForFriendFeed() message.NoPublishHandlerFunc {
	return h.activityHandler("friends", h.friendFeed)
}

func (h *EventHandlers) activityHandler(concern string, svc ActivityProcessor) message.NoPublishHandlerFunc {
	return Bind(h.logger, func(ctx context.Context, ev *event.ActivityEvent) error {
		return h.lanes.Execute(ctx, concern+"/"+ev.GetPartitionKey(), func(ctx context.Context) error {
			return svc.Process(ctx, ev)
		})
	})
}

// OnLinkingEvent applies one linking transition. Failures are logged and
// acked: an unresolvable reference is a normal state resolved by a later
// event, and a malformed event must not block the rest of the partition.
func (h *EventHandlers) OnLinkingEvent() message.NoPublishHandlerFunc {
	return Bind(h.logger, func(ctx context.Context, ev *event.LinkingEvent) error {
		err := h.lanes.Execute(ctx, "linking/"+ev.GetPartitionKey(), func(ctx context.Context) error {
			return h.linker.Handle(ctx, ev)
		})
		if err != nil {
			h.logger.Error("LINKING_EVENT_DROPPED",
				"event_id", ev.EventID,
				"type", ev.Type,
				"err", err,
			)
		}
		return nil
	})
}
