package linking

import "go.uber.org/fx"

var Module = fx.Module("linking",
	fx.Provide(
		fx.Annotate(
			NewService,
			fx.As(new(Linker)),
		),
	),
)
