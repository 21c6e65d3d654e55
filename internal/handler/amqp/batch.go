package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/producer"
)

// BatchApplier applies one ordered batch of set mutations.
type BatchApplier interface {
	ApplyBatch(ctx context.Context, events []*event.CategoryExpenseEvent) error
}

// BatchConsumer drives the mutation pipeline outside the watermill router:
// it accumulates deliveries into ordered batches and acknowledges them as a
// unit. A failed batch is nacked whole — redelivery is safe because applying
// the same mutations again is idempotent.
type BatchConsumer struct {
	subscriber message.Subscriber
	applier    BatchApplier
	logger     *slog.Logger

	maxSize int
	maxWait time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBatchConsumer(sub message.Subscriber, applier BatchApplier, logger *slog.Logger, maxSize int, maxWait time.Duration) *BatchConsumer {
	if maxSize <= 0 {
		maxSize = 100
	}
	if maxWait <= 0 {
		maxWait = 200 * time.Millisecond
	}
	return &BatchConsumer{
		subscriber: sub,
		applier:    applier,
		logger:     logger,
		maxSize:    maxSize,
		maxWait:    maxWait,
	}
}

func (c *BatchConsumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, producer.TopicMutation)
	if err != nil {
		return fmt.Errorf("batch consumer: subscribe: %w", err)
	}

	c.wg.Add(1)
	go c.loop(ctx, msgs)

	c.logger.Info("BATCH_CONSUMER_READY",
		"topic", producer.TopicMutation,
		"max_size", c.maxSize,
		"max_wait", c.maxWait.String(),
	)
	return nil
}

// Stop cancels the subscription and waits for the in-flight batch.
func (c *BatchConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

type pendingMutation struct {
	msg *message.Message
	ev  *event.CategoryExpenseEvent
}

func (c *BatchConsumer) loop(ctx context.Context, msgs <-chan *message.Message) {
	defer c.wg.Done()

	batch := make([]pendingMutation, 0, c.maxSize)
	t := time.NewTimer(c.maxWait)
	defer t.Stop()

	resetTimer := func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(c.maxWait)
	}

	flush := func() {
		if len(batch) == 0 {
			resetTimer()
			return
		}
		c.flush(ctx, batch)
		batch = batch[:0]
		resetTimer()
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case msg, ok := <-msgs:
			if !ok {
				flush()
				return
			}
			if p, ok := c.decode(msg); ok {
				batch = append(batch, p)
			}
			if len(batch) >= c.maxSize {
				flush()
			}

		case <-t.C:
			flush()
		}
	}
}

// decode coerces a delivery into a pending mutation. Undecodable payloads
// are acked and logged right here: deserialization failures are per-event
// skip-and-log and must not poison the batch.
func (c *BatchConsumer) decode(msg *message.Message) (pendingMutation, bool) {
	env, err := event.Open[*event.CategoryExpenseEvent](msg.Payload)
	if err != nil {
		c.logger.Error("MUTATION_DECODE_FAILED", "err", err, "msg_id", msg.UUID)
		msg.Ack()
		return pendingMutation{}, false
	}
	return pendingMutation{msg: msg, ev: env.Payload}, true
}

// flush applies the batch in delivery order, then acks or nacks it whole.
func (c *BatchConsumer) flush(ctx context.Context, batch []pendingMutation) {
	events := make([]*event.CategoryExpenseEvent, len(batch))
	for i, p := range batch {
		events[i] = p.ev
	}

	if err := c.applier.ApplyBatch(ctx, events); err != nil {
		c.logger.Error("MUTATION_BATCH_FAILED",
			"size", len(batch),
			"err", err,
		)
		for _, p := range batch {
			p.msg.Nack()
		}
		return
	}

	for _, p := range batch {
		p.msg.Ack()
	}
	c.logger.Debug("MUTATION_BATCH_APPLIED", "size", len(batch))
}
