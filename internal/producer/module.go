package producer

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/finbook/event-pipeline-service/config"
	"github.com/finbook/event-pipeline-service/internal/adapter/pubsub"
	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

var Module = fx.Module("producers",
	fx.Provide(
		func(cfg *config.Config) event.ServiceInfo {
			return event.ServiceInfo{
				Name:        cfg.Service.Name,
				Version:     cfg.Service.Version,
				Environment: cfg.Service.Environment,
			}
		},

		func(pp *pubsub.PublisherProvider, src event.ServiceInfo, logger *slog.Logger) (*Producer[*event.ActivityEvent], error) {
			pub, err := pp.Build(pubsub.ExchangeActivity)
			if err != nil {
				return nil, err
			}
			return NewActivityProducer(pub, src, logger)
		},

		func(pp *pubsub.PublisherProvider, logger *slog.Logger) (*Producer[*event.CategoryExpenseEvent], error) {
			pub, err := pp.Build(pubsub.ExchangeMutation)
			if err != nil {
				return nil, err
			}
			return NewCategoryExpenseProducer(pub, logger)
		},

		func(pp *pubsub.PublisherProvider, logger *slog.Logger) (*Producer[*event.LinkingEvent], error) {
			pub, err := pp.Build(pubsub.ExchangeLinking)
			if err != nil {
				return nil, err
			}
			return NewLinkingProducer(pub, logger)
		},
	),
)
