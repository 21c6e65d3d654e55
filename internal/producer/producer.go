package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

// Message metadata keys shared by producers and consumers.
const (
	MetaEventID      = "event_id"
	MetaPartitionKey = "partition_key"
	MetaTraceID      = "trace_id"
)

// Config is the data-driven shape of one producer: a topic, a deterministic
// partition-key strategy, a validation hook and optional send hooks. One
// generic Publish implementation replaces a hierarchy of per-event-type
// producer classes.
type Config[T event.Eventer] struct {
	Topic string

	// PartitionKey must be pure and deterministic: the same logical subject
	// always yields the same key, so per-subject ordering holds.
	PartitionKey func(T) string

	// Validate rejects an event before any broker interaction. Optional.
	Validate func(T) error

	// BeforePublish runs side effects (logging, metrics) after validation
	// and key derivation, before broker handoff. Optional.
	BeforePublish func(ctx context.Context, ev T)

	// OnSuccess / OnFailure observe completion of an async Publish.
	// Failure hooks log; they never retry — publication is not idempotent,
	// so retry correctness lives consumer-side. Optional.
	OnSuccess func(ev T)
	OnFailure func(ev T, err error)
}

// Producer publishes one event type to its topic.
type Producer[T event.Eventer] struct {
	publisher message.Publisher
	cfg       Config[T]
	logger    *slog.Logger
}

func New[T event.Eventer](pub message.Publisher, cfg Config[T], logger *slog.Logger) (*Producer[T], error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("producer: topic is required")
	}
	if cfg.PartitionKey == nil {
		return nil, fmt.Errorf("producer: partition key strategy is required")
	}
	return &Producer[T]{publisher: pub, cfg: cfg, logger: logger}, nil
}

// Publish is fire-and-forget: validation happens synchronously so the caller
// learns about malformed events immediately, but broker handoff completes in
// the background and failures surface only through OnFailure.
func (p *Producer[T]) Publish(ctx context.Context, ev T) error {
	msg, err := p.prepare(ctx, ev)
	if err != nil {
		return err
	}

	go func() {
		if err := p.publisher.Publish(p.cfg.Topic, msg); err != nil {
			p.logger.Error("PUBLISH_FAILED",
				"topic", p.cfg.Topic,
				"event_id", ev.GetEventID(),
				"err", err,
			)
			if p.cfg.OnFailure != nil {
				p.cfg.OnFailure(ev, err)
			}
			return
		}
		if p.cfg.OnSuccess != nil {
			p.cfg.OnSuccess(ev)
		}
	}()

	return nil
}

// PublishSync blocks until the broker acknowledges the handoff. The caller's
// transaction decides whether a returned error rolls it back.
func (p *Producer[T]) PublishSync(ctx context.Context, ev T) error {
	msg, err := p.prepare(ctx, ev)
	if err != nil {
		return err
	}

	if err := p.publisher.Publish(p.cfg.Topic, msg); err != nil {
		if p.cfg.OnFailure != nil {
			p.cfg.OnFailure(ev, err)
		}
		return fmt.Errorf("producer: publish %s: %w", p.cfg.Topic, err)
	}
	if p.cfg.OnSuccess != nil {
		p.cfg.OnSuccess(ev)
	}
	return nil
}

// prepare runs the fixed pre-send pipeline: validate, derive the partition
// key, invoke the pre-send hook, seal the envelope. The payload is marshalled
// at handoff, so nothing mutates it after this point.
func (p *Producer[T]) prepare(ctx context.Context, ev T) (*message.Message, error) {
	if p.cfg.Validate != nil {
		if err := p.cfg.Validate(ev); err != nil {
			return nil, err
		}
	}

	if p.cfg.BeforePublish != nil {
		p.cfg.BeforePublish(ctx, ev)
	}

	key := p.cfg.PartitionKey(ev)

	payload, err := json.Marshal(event.Seal(ev))
	if err != nil {
		return nil, fmt.Errorf("producer: marshal envelope: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaEventID, ev.GetEventID())
	msg.Metadata.Set(MetaPartitionKey, key)
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		msg.Metadata.Set(MetaTraceID, traceID)
	}
	msg.SetContext(ctx)

	return msg, nil
}

type traceIDKey struct{}

// WithTraceID attaches a correlation id that producers copy into message
// metadata.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}
