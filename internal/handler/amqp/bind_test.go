package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/finbook/event-pipeline-service/internal/domain/event"
	"github.com/finbook/event-pipeline-service/internal/producer"
)

func sealedMessage(t *testing.T, ev event.Eventer) *message.Message {
	t.Helper()
	payload, err := json.Marshal(event.Seal(ev))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return message.NewMessage(watermill.NewUUID(), payload)
}

func TestBindDeliversDecodedEvent(t *testing.T) {
	ev := event.NewLinkingEvent(event.BudgetExpenseLinkUpdate, 12)

	var got *event.LinkingEvent
	h := Bind(testLogger(), func(_ context.Context, e *event.LinkingEvent) error {
		got = e
		return nil
	})

	if err := h(sealedMessage(t, ev)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got == nil || got.EventID != ev.EventID {
		t.Fatalf("handler saw %+v, want event %s", got, ev.EventID)
	}
}

func TestBindAcksUndecodablePayload(t *testing.T) {
	called := false
	h := Bind(testLogger(), func(context.Context, *event.LinkingEvent) error {
		called = true
		return nil
	})

	msg := message.NewMessage(watermill.NewUUID(), []byte("{broken"))
	if err := h(msg); err != nil {
		t.Fatalf("decode failure must ack, got %v", err)
	}
	if called {
		t.Error("handler ran on undecodable payload")
	}
}

func TestBindPropagatesHandlerError(t *testing.T) {
	want := errors.New("storage down")
	h := Bind(testLogger(), func(context.Context, *event.LinkingEvent) error {
		return want
	})

	err := h(sealedMessage(t, event.NewLinkingEvent(event.BudgetExpenseLinkUpdate, 12)))
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestBindRecoversPanics(t *testing.T) {
	h := Bind(testLogger(), func(context.Context, *event.LinkingEvent) error {
		panic("nil map write")
	})

	if err := h(sealedMessage(t, event.NewLinkingEvent(event.BudgetExpenseLinkUpdate, 12))); err != nil {
		t.Fatalf("panic must ack, got %v", err)
	}
}

func TestTraceIDMiddlewareGeneratesMissingID(t *testing.T) {
	var seen string
	h := TraceIDMiddleware(func(msg *message.Message) ([]*message.Message, error) {
		seen = msg.Metadata.Get(producer.MetaTraceID)
		return nil, nil
	})

	msg := message.NewMessage(watermill.NewUUID(), nil)
	if _, err := h(msg); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if seen == "" {
		t.Fatal("no trace id generated")
	}

	msg2 := message.NewMessage(watermill.NewUUID(), nil)
	msg2.Metadata.Set(producer.MetaTraceID, "fixed")
	if _, err := h(msg2); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if seen != "fixed" {
		t.Fatalf("existing trace id replaced with %q", seen)
	}
}
