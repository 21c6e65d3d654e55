package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/finbook/event-pipeline-service/internal/adapter/pubsub"
	"github.com/finbook/event-pipeline-service/internal/producer"
)

const (
	// ------------------- EXCHANGES (SOURCES) -------------------
	ActivityExchange = pubsub.ExchangeActivity
	MutationExchange = pubsub.ExchangeMutation
	LinkingExchange  = pubsub.ExchangeLinking

	// ------------------- QUEUES (CONSUMER GROUPS) --------------
	// One durable queue per concern: instances of a group compete on their
	// queue, while the groups fan out independently from the same exchange.
	AuditQueue        = "fin-events.audit.v1"
	NotificationQueue = "fin-events.notifications.v1"
	FriendFeedQueue   = "fin-events.friend-feed.v1"
	LinkingQueue      = "fin-events.linking.v1"
	MutationQueue     = "fin-events.category-index.v1"

	PoisonTopic = "fin-events.poison.v1"

	consumerPrefetch = 64
)

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{
		CloseTimeout: 30 * time.Second,
	}, logger)
}

// RegisterHandlers wires every router-driven consumer group. The mutation
// batch consumer manages its own subscription (see BatchConsumer): it needs
// whole-batch acknowledgment, which the per-message router cannot express.
func (h *EventHandlers) RegisterHandlers(router *message.Router, subProvider *pubsub.SubscriberProvider, pubProvider *pubsub.PublisherProvider) error {
	poisonPub, err := pubProvider.Build(ActivityExchange)
	if err != nil {
		return fmt.Errorf("amqp: poison publisher: %w", err)
	}
	poison, err := middleware.PoisonQueue(poisonPub, PoisonTopic)
	if err != nil {
		return fmt.Errorf("amqp: poison setup: %w", err)
	}

	configs := []struct {
		name     string
		exchange string
		queue    string
		topic    string
		handler  message.NoPublishHandlerFunc
	}{
		{"ON_ACTIVITY_AUDIT", ActivityExchange, AuditQueue, producer.TopicActivity, h.OnActivityForAudit()},
		{"ON_ACTIVITY_NOTIFY", ActivityExchange, NotificationQueue, producer.TopicActivity, h.OnActivityForNotification()},
		{"ON_ACTIVITY_FRIENDS", ActivityExchange, FriendFeedQueue, producer.TopicActivity, h.OnActivityForFriendFeed()},
		{"ON_LINKING_EVENT", LinkingExchange, LinkingQueue, producer.TopicLinking, h.OnLinkingEvent()},
	}

	for _, c := range configs {
		sub, err := subProvider.Build(c.queue, c.exchange, consumerPrefetch)
		if err != nil {
			return fmt.Errorf("amqp: subscriber %s: %w", c.name, err)
		}

		router.AddNoPublisherHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY",
		"groups", []string{AuditQueue, NotificationQueue, FriendFeedQueue, LinkingQueue},
	)
	return nil
}

// EventHandlers bundles the consumer services behind the router.
type EventHandlers struct {
	logger     *slog.Logger
	audit      ActivityProcessor
	notifier   ActivityProcessor
	friendFeed ActivityProcessor
	linker     Linker
	lanes      LaneExecutor
}

func NewEventHandlers(
	logger *slog.Logger,
	audit ActivityProcessor,
	notifier ActivityProcessor,
	friendFeed ActivityProcessor,
	linker Linker,
	lanes LaneExecutor,
) *EventHandlers {
	return &EventHandlers{
		logger:     logger,
		audit:      audit,
		notifier:   notifier,
		friendFeed: friendFeed,
		linker:     linker,
		lanes:      lanes,
	}
}
