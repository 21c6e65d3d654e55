package cmd

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/fx"

	"github.com/finbook/event-pipeline-service/config"
	infrapubsub "github.com/finbook/event-pipeline-service/infra/pubsub"
	"github.com/finbook/event-pipeline-service/infra/server"
	amqphandler "github.com/finbook/event-pipeline-service/internal/handler/amqp"
	"github.com/finbook/event-pipeline-service/internal/producer"
	"github.com/finbook/event-pipeline-service/internal/service/activity"
	"github.com/finbook/event-pipeline-service/internal/service/linking"
	"github.com/finbook/event-pipeline-service/internal/service/mutation"
	"github.com/finbook/event-pipeline-service/internal/storage"
	"github.com/finbook/event-pipeline-service/internal/storage/postgres"
	"github.com/finbook/event-pipeline-service/internal/worker/lane"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvidePubSub,
			func(db *postgres.DB) server.ReadyChecker { return db },
		),

		// [DECORATION_LAYER] Intercept cross-module dependencies to add
		// cross-cutting concerns. Root scope, so every consumer sees them.
		fx.Decorate(func(next storage.CategoryIndexStore) storage.CategoryIndexStore {
			// A failing backend sheds load instead of stacking batch retries.
			return storage.NewBreakerIndexStore(next)
		}),
		fx.Decorate(func(orig linking.Linker, logger *slog.Logger) linking.Linker {
			return linking.NewMiddleware(orig, logger)
		}),

		postgres.Module,
		mutation.Module,
		linking.Module,
		activity.Module,
		lane.Module,
		producer.Module,
		amqphandler.Module,
		server.Module,
	)
}

// ProvideLogger builds the process logger. The level var is shared with the
// config watcher so log.level changes apply without a restart.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(config.ParseLevel(cfg.Log.Level))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service.Name,
		"version", cfg.Service.Version,
	)
	slog.SetDefault(logger)

	cfg.WatchLogLevel(level, logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

func ProvidePubSub(cfg *config.Config, logger watermill.LoggerAdapter) infrapubsub.Provider {
	return infrapubsub.NewAMQPProvider(cfg.AMQP.URI, logger)
}
