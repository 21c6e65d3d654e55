package postgres

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/finbook/event-pipeline-service/config"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

var Module = fx.Module("storage",
	fx.Provide(
		NewDB,
		fx.Annotate(NewIndexStore, fx.As(new(storage.CategoryIndexStore))),
		fx.Annotate(NewMappingStore, fx.As(new(storage.IDMappingStore))),
		fx.Annotate(NewBudgetStore, fx.As(new(storage.BudgetStore))),
		fx.Annotate(NewAuditLog, fx.As(new(storage.AuditStore))),
		fx.Annotate(NewNotificationLog, fx.As(new(storage.NotificationStore))),
		fx.Annotate(NewFriendFeed, fx.As(new(storage.FriendFeedStore))),
	),
)

// NewDB opens the shared pool, optionally applies the schema file, and ties
// the pool to the fx lifecycle.
func NewDB(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	if path := cfg.Postgres.MigrationFile; path != "" {
		if err := db.RunMigration(ctx, path); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("SCHEMA_APPLIED", "file", path)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			db.Close()
			return nil
		},
	})
	return db, nil
}
