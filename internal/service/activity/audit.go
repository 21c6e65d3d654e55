package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// AuditRecorder is the audit consumer: every event flagged requires_audit
// lands in the audit trail, own action or not.
type AuditRecorder struct {
	store  storage.AuditStore
	logger *slog.Logger
}

func NewAuditRecorder(store storage.AuditStore, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{store: store, logger: logger}
}

// Process applies the consumer's predicate and records matching events.
// Non-matching events are dropped without side effects.
func (a *AuditRecorder) Process(ctx context.Context, ev *event.ActivityEvent) error {
	if !ev.ShouldAudit() {
		return nil
	}

	rec := &model.AuditRecord{
		ID:            uuid.NewString(),
		EventID:       ev.EventID,
		CorrelationID: ev.CorrelationID,
		ActorID:       ev.ActorID,
		ActorName:     ev.ActorName,
		TargetID:      ev.TargetID,
		EntityType:    ev.EntityType,
		EntityID:      ev.EntityID,
		Action:        ev.Action,
		Amount:        ev.Amount,
		OldValues:     ev.OldValues,
		NewValues:     ev.NewValues,
		SourceService: ev.SourceService,
		OccurredAt:    ev.OccurredAt,
		RecordedAt:    time.Now().UTC(),
	}

	if err := a.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("audit: append %s: %w", ev.EventID, err)
	}

	a.logger.Debug("AUDIT_RECORDED",
		"event_id", ev.EventID,
		"correlation_id", ev.CorrelationID,
		"entity", ev.EntityType,
		"action", ev.Action,
	)
	return nil
}
