package lane

import (
	"context"

	"go.uber.org/fx"

	appconfig "github.com/finbook/event-pipeline-service/config"
)

var Module = fx.Module("lanes",
	fx.Provide(
		func(cfg *appconfig.Config) *Dispatcher {
			return NewDispatcher(
				WithMailboxSize(cfg.Consumer.LaneMailboxSize),
				WithIdleTimeout(cfg.Consumer.LaneIdleTimeout),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, d *Dispatcher) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return d.Shutdown(ctx)
			},
		})
	}),
)
