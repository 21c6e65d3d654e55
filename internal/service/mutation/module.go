package mutation

import "go.uber.org/fx"

var Module = fx.Module("mutation",
	fx.Provide(NewApplier),
)
