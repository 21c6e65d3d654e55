package amqp

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"

	"github.com/finbook/event-pipeline-service/internal/producer"
)

// TraceIDMiddleware guarantees every message carries a trace id so one
// mutation can be followed across the audit trail even though no component
// owns an end-to-end transaction.
func TraceIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		traceID := msg.Metadata.Get(producer.MetaTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
			msg.Metadata.Set(producer.MetaTraceID, traceID)
		}

		msg.SetContext(producer.WithTraceID(msg.Context(), traceID))
		return h(msg)
	}
}

// LoggingMiddleware logs every handled message with latency and correlation
// identifiers.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			logger.Debug("MESSAGE_HANDLED",
				"msg_id", msg.UUID,
				"event_id", msg.Metadata.Get(producer.MetaEventID),
				"trace_id", msg.Metadata.Get(producer.MetaTraceID),
				"duration_ms", time.Since(start).Milliseconds(),
				"success", err == nil,
			)
			return msgs, err
		}
	}
}

// NewRetryMiddleware redelivers nacked messages with backoff before the
// poison queue takes over.
func NewRetryMiddleware() middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: time.Second * 2,
		MaxInterval:     time.Second * 15,
		Multiplier:      2.0,
	}
}
