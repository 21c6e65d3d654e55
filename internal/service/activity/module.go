package activity

import "go.uber.org/fx"

var Module = fx.Module("activity-consumers",
	fx.Provide(
		NewAuditRecorder,
		NewNotifier,
		NewFriendFeedWriter,
	),
)
