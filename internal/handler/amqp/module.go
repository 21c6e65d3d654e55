package amqp

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/finbook/event-pipeline-service/config"
	pubsubadapter "github.com/finbook/event-pipeline-service/internal/adapter/pubsub"
	"github.com/finbook/event-pipeline-service/internal/service/activity"
	"github.com/finbook/event-pipeline-service/internal/service/linking"
	"github.com/finbook/event-pipeline-service/internal/service/mutation"
	"github.com/finbook/event-pipeline-service/internal/worker/lane"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		pubsubadapter.NewPublisherProvider,
		pubsubadapter.NewSubscriberProvider,

		NewWatermillRouter,
		NewHandlers,
		NewMutationBatchConsumer,
	),

	fx.Invoke(RegisterAll),
)

// NewHandlers binds the consumer services to the router bridge.
func NewHandlers(
	logger *slog.Logger,
	audit *activity.AuditRecorder,
	notifier *activity.Notifier,
	friendFeed *activity.FriendFeedWriter,
	linker linking.Linker,
	lanes *lane.Dispatcher,
) *EventHandlers {
	return NewEventHandlers(logger, audit, notifier, friendFeed, linker, lanes)
}

// NewMutationBatchConsumer builds the batch consumer on its own durable
// consumer-group queue.
func NewMutationBatchConsumer(
	cfg *config.Config,
	subProvider *pubsubadapter.SubscriberProvider,
	applier *mutation.Applier,
	logger *slog.Logger,
) (*BatchConsumer, error) {
	sub, err := subProvider.Build(MutationQueue, MutationExchange, cfg.Consumer.BatchMaxSize)
	if err != nil {
		return nil, err
	}
	return NewBatchConsumer(sub, applier, logger,
		cfg.Consumer.BatchMaxSize, cfg.Consumer.BatchMaxWait), nil
}

// RegisterAll wires the router handlers and ties both consumption paths to
// the fx lifecycle.
func RegisterAll(
	lc fx.Lifecycle,
	router *message.Router,
	h *EventHandlers,
	subProvider *pubsubadapter.SubscriberProvider,
	pubProvider *pubsubadapter.PublisherProvider,
	batch *BatchConsumer,
	logger *slog.Logger,
) error {
	if err := h.RegisterHandlers(router, subProvider, pubProvider); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("ROUTER_STOPPED", "err", err)
				}
			}()
			return batch.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			batch.Stop()
			return router.Close()
		},
	})
	return nil
}
