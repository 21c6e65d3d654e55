package linking

import (
	"context"
	"log/slog"
	"time"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

// Middleware decorates a Linker with outcome and latency logging, keeping
// observability out of the transition logic itself.
type Middleware struct {
	Next   Linker
	Logger *slog.Logger
}

func NewMiddleware(next Linker, logger *slog.Logger) Linker {
	return &Middleware{Next: next, Logger: logger}
}

func (m *Middleware) Handle(ctx context.Context, ev *event.LinkingEvent) error {
	start := time.Now()

	err := m.Next.Handle(ctx, ev)

	if err != nil {
		m.Logger.Error("LINKING_EVENT_FAILED",
			"event_id", ev.EventID,
			"type", ev.Type,
			"user_id", ev.UserID,
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
	} else {
		m.Logger.Debug("LINKING_EVENT_HANDLED",
			"event_id", ev.EventID,
			"type", ev.Type,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return err
}
