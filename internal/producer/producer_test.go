package producer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
)

// capturePublisher records published messages per topic.
type capturePublisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
	fail     error
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{messages: make(map[string][]*message.Message)}
}

func (p *capturePublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.messages[topic] = append(p.messages[topic], msgs...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) take(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[topic]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSyncSealsEnvelopeWithMetadata(t *testing.T) {
	pub := newCapturePublisher()
	src := event.ServiceInfo{Name: "expense-service", Version: "9.9.9", Environment: "test"}
	p, err := NewActivityProducer(pub, src, testLogger())
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}

	ev := event.NewActivityEvent(7, 7, event.EntityExpense, 100, event.ActionCreate)
	ctx := WithTraceID(context.Background(), "trace-123")
	if err := p.PublishSync(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs := pub.take(TopicActivity)
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	msg := msgs[0]

	if got := msg.Metadata.Get(MetaEventID); got != ev.EventID {
		t.Errorf("event_id metadata = %q, want %q", got, ev.EventID)
	}
	if got := msg.Metadata.Get(MetaPartitionKey); got != "7" {
		t.Errorf("partition_key metadata = %q, want 7", got)
	}
	if got := msg.Metadata.Get(MetaTraceID); got != "trace-123" {
		t.Errorf("trace_id metadata = %q, want trace-123", got)
	}

	env, err := event.Open[*event.ActivityEvent](msg.Payload)
	if err != nil {
		t.Fatalf("open envelope: %v", err)
	}
	// Enrichment ran before the envelope was sealed.
	if env.Payload.SourceService != "expense-service" {
		t.Errorf("payload source service = %q, enrichment missing", env.Payload.SourceService)
	}
	if !env.Payload.IsOwnAction {
		t.Error("routing flags not computed before seal")
	}
}

func TestPublishRejectsInvalidEventSynchronously(t *testing.T) {
	pub := newCapturePublisher()
	p, err := NewCategoryExpenseProducer(pub, testLogger())
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}

	bad := &event.CategoryExpenseEvent{EventID: "x"} // missing ids
	if err := p.Publish(context.Background(), bad); err == nil {
		t.Fatal("invalid event accepted")
	}

	var invalid *event.InvalidEventError
	if err := p.PublishSync(context.Background(), bad); !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidEventError", err)
	}
	if len(pub.take(TopicMutation)) != 0 {
		t.Error("invalid event reached the broker")
	}
}

func TestPublishInvokesCompletionHooks(t *testing.T) {
	pub := newCapturePublisher()
	succeeded := make(chan string, 1)
	failed := make(chan error, 1)

	p, err := New(pub, Config[*event.LinkingEvent]{
		Topic:        TopicLinking,
		PartitionKey: (*event.LinkingEvent).GetPartitionKey,
		OnSuccess:    func(ev *event.LinkingEvent) { succeeded <- ev.EventID },
		OnFailure:    func(_ *event.LinkingEvent, err error) { failed <- err },
	}, testLogger())
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}

	ev := event.NewLinkingEvent(event.BudgetExpenseLinkUpdate, 12)
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case id := <-succeeded:
		if id != ev.EventID {
			t.Errorf("success hook saw %q, want %q", id, ev.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("success hook never fired")
	}

	pub.fail = errors.New("broker down")
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("fire-and-forget publish surfaced broker error: %v", err)
	}
	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("failure hook never fired")
	}
}

func TestNewRequiresTopicAndPartitionKey(t *testing.T) {
	pub := newCapturePublisher()

	if _, err := New(pub, Config[*event.LinkingEvent]{
		PartitionKey: (*event.LinkingEvent).GetPartitionKey,
	}, testLogger()); err == nil {
		t.Error("missing topic accepted")
	}

	if _, err := New(pub, Config[*event.LinkingEvent]{
		Topic: TopicLinking,
	}, testLogger()); err == nil {
		t.Error("missing partition key strategy accepted")
	}
}
