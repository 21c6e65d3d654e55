package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Eventer defines the contract for every payload flowing through the pipeline.
type Eventer interface {
	GetEventID() string
	GetPartitionKey() string
	GetOccurredAt() int64
}

// Envelope is the broker-level wrapper shared by every event type.
//
// [IMMUTABILITY]
// An envelope is sealed at publish time: producers marshal it once and never
// touch the payload after handoff to the broker client.
type Envelope[T Eventer] struct {
	EventID      string `json:"event_id"`
	OccurredAt   int64  `json:"occurred_at"` // unix millis, UTC
	PartitionKey string `json:"partition_key"`
	Payload      T      `json:"payload"`
}

// Seal wraps a payload into its immutable envelope.
func Seal[T Eventer](ev T) Envelope[T] {
	return Envelope[T]{
		EventID:      ev.GetEventID(),
		OccurredAt:   ev.GetOccurredAt(),
		PartitionKey: ev.GetPartitionKey(),
		Payload:      ev,
	}
}

// Open decodes an envelope from its wire form.
func Open[T Eventer](raw []byte) (Envelope[T], error) {
	var e Envelope[T]
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, fmt.Errorf("envelope: decode: %w", err)
	}
	return e, nil
}

// InvalidEventError reports an event rejected before publish because a
// required identity field was missing or malformed.
type InvalidEventError struct {
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

func nowMillis() int64 { return time.Now().UnixMilli() }
