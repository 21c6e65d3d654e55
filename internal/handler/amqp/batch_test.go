package amqp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

// stubSubscriber hands deliveries straight through, keeping the original
// messages so tests can observe ack/nack outcomes.
type stubSubscriber struct {
	ch chan *message.Message
}

func newStubSubscriber() *stubSubscriber {
	return &stubSubscriber{ch: make(chan *message.Message, 64)}
}

func (s *stubSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return s.ch, nil
}

func (s *stubSubscriber) Close() error { return nil }

func (s *stubSubscriber) deliver(t *testing.T, ev *event.CategoryExpenseEvent) *message.Message {
	t.Helper()
	payload, err := json.Marshal(event.Seal(ev))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	s.ch <- msg
	return msg
}

type captureApplier struct {
	mu      sync.Mutex
	batches [][]*event.CategoryExpenseEvent
	err     error
	applied chan int
}

func newCaptureApplier() *captureApplier {
	return &captureApplier{applied: make(chan int, 16)}
}

func (a *captureApplier) ApplyBatch(_ context.Context, events []*event.CategoryExpenseEvent) error {
	a.mu.Lock()
	a.batches = append(a.batches, events)
	err := a.err
	a.mu.Unlock()
	a.applied <- len(events)
	return err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startConsumer(t *testing.T, applier BatchApplier, maxSize int, maxWait time.Duration) *stubSubscriber {
	t.Helper()
	sub := newStubSubscriber()

	c := NewBatchConsumer(sub, applier, testLogger(), maxSize, maxWait)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(c.Stop)
	return sub
}

func waitBatch(t *testing.T, applier *captureApplier, wantSize int) {
	t.Helper()
	select {
	case got := <-applier.applied:
		if got != wantSize {
			t.Fatalf("batch size = %d, want %d", got, wantSize)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("batch never flushed")
	}
}

func waitAck(t *testing.T, msg *message.Message) {
	t.Helper()
	select {
	case <-msg.Acked():
	case <-time.After(3 * time.Second):
		t.Fatal("message never acked")
	}
}

func TestBatchFlushesWhenFull(t *testing.T) {
	applier := newCaptureApplier()
	sub := startConsumer(t, applier, 3, time.Hour)

	var msgs []*message.Message
	for i := int64(1); i <= 3; i++ {
		msgs = append(msgs, sub.deliver(t, event.NewCategoryExpenseEvent(1, 5, 10+i, event.MutationAdd)))
	}

	waitBatch(t, applier, 3)
	for _, msg := range msgs {
		waitAck(t, msg)
	}
}

func TestBatchFlushesOnTimer(t *testing.T) {
	applier := newCaptureApplier()
	sub := startConsumer(t, applier, 100, 50*time.Millisecond)

	m1 := sub.deliver(t, event.NewCategoryExpenseEvent(1, 5, 11, event.MutationAdd))
	m2 := sub.deliver(t, event.NewCategoryExpenseEvent(1, 5, 12, event.MutationAdd))

	waitBatch(t, applier, 2)
	waitAck(t, m1)
	waitAck(t, m2)
}

func TestBatchPreservesDeliveryOrder(t *testing.T) {
	applier := newCaptureApplier()
	sub := startConsumer(t, applier, 4, time.Hour)

	for i := int64(1); i <= 4; i++ {
		sub.deliver(t, event.NewCategoryExpenseEvent(1, 5, i, event.MutationAdd))
	}
	waitBatch(t, applier, 4)

	applier.mu.Lock()
	defer applier.mu.Unlock()
	for i, ev := range applier.batches[0] {
		if ev.ExpenseID != int64(i+1) {
			t.Fatalf("position %d holds expense %d, order lost", i, ev.ExpenseID)
		}
	}
}

func TestUndecodablePayloadIsSkippedAndAcked(t *testing.T) {
	applier := newCaptureApplier()
	sub := startConsumer(t, applier, 2, 50*time.Millisecond)

	garbage := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	sub.ch <- garbage
	sub.deliver(t, event.NewCategoryExpenseEvent(1, 5, 11, event.MutationAdd))

	// Only the decodable event reaches the applier; the garbage is acked away.
	waitBatch(t, applier, 1)
	waitAck(t, garbage)
}

func TestFailedBatchIsNackedWhole(t *testing.T) {
	applier := newCaptureApplier()
	applier.err = context.DeadlineExceeded
	sub := startConsumer(t, applier, 2, time.Hour)

	m1 := sub.deliver(t, event.NewCategoryExpenseEvent(1, 5, 11, event.MutationAdd))
	m2 := sub.deliver(t, event.NewCategoryExpenseEvent(1, 5, 12, event.MutationAdd))

	waitBatch(t, applier, 2)
	for _, msg := range []*message.Message{m1, m2} {
		select {
		case <-msg.Nacked():
		case <-time.After(3 * time.Second):
			t.Fatal("failed batch message was not nacked")
		}
	}
}

func TestStopFlushesPendingBatch(t *testing.T) {
	applier := newCaptureApplier()
	sub := newStubSubscriber()

	c := NewBatchConsumer(sub, applier, testLogger(), 100, time.Hour)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	msg := sub.deliver(t, event.NewCategoryExpenseEvent(1, 5, 11, event.MutationAdd))
	// Give the loop a beat to pull the delivery into the pending batch.
	waitForPull(t, sub)

	c.Stop()
	waitBatch(t, applier, 1)
	waitAck(t, msg)
}

func waitForPull(t *testing.T, sub *stubSubscriber) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for len(sub.ch) > 0 {
		select {
		case <-deadline:
			t.Fatal("consumer never pulled the delivery")
		case <-time.After(time.Millisecond):
		}
	}
}
