package amqp

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

// DomainHandler is the functional signature consumers implement: one decoded
// event in, ack (nil) or nack (error) out.
type DomainHandler[T event.Eventer] func(ctx context.Context, ev T) error

// Bind bridges a watermill message to a typed domain handler.
//
// Ack/nack policy:
//   - panic: recovered and acked — a deterministic crash would poison the
//     queue forever;
//   - undecodable payload: acked and logged (deserialization errors are
//     per-event skip-and-log, never batch failures);
//   - handler error: nacked, so the retry/poison middleware decides.
func Bind[T event.Eventer](logger *slog.Logger, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID,
				)
				err = nil
			}
		}()

		env, decodeErr := event.Open[T](msg.Payload)
		if decodeErr != nil {
			logger.Error("DECODE_FAILED", "err", decodeErr, "msg_id", msg.UUID)
			return nil
		}

		return fn(msg.Context(), env.Payload)
	}
}
