// Package stagedlog implements the staged-event log: a finite, mutable,
// insertion-ordered sequence of events bound to one transaction attempt.
//
// A Log is never shared across attempts. The runner creates a fresh Log for
// every call to the user function and calls Reset before each retry so a
// discarded attempt never leaks events into the next one.
package stagedlog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one staged publish: a topic, an already-serialized payload, a set
// of attributes, and an optional ordering key. Payload is serialized at
// stage time (not at publish time) so a failed broker call during the
// sender's publish never re-serializes it, and tests can assert the exact
// bytes that went on the wire.
type Event struct {
	ID             uuid.UUID
	Topic          string
	SerializedData []byte
	Attributes     map[string]string
	OrderingKey    string
}

// Payload is the shape staged payloads are expected to carry, used only to
// compute default attributes. Fields are read via the accessor methods below
// so callers can stage any JSON-marshalable value; a value that doesn't
// implement Payload still stages fine, it just gets no default attributes
// beyond producedAt.
type Payload interface {
	// EventID returns the payload's own identifier, used as the eventId
	// attribute when non-empty. Return "" to omit it.
	EventID() string
	// EventName returns the payload's logical name, used as the eventName
	// attribute. Return "" to omit it.
	EventName() string
	// ProducedAt returns the payload's own production time, used as the
	// producedAt attribute in place of stage time when non-zero. Return the
	// zero time to fall back to stage time.
	ProducedAt() time.Time
}

// StageOptions customizes one Stage call.
type StageOptions struct {
	// Attributes are merged over the computed defaults; the caller always wins.
	Attributes map[string]string
	// OrderingKey becomes the broker's message key when set.
	OrderingKey string
	// Codec serializes payload to bytes. Defaults to encoding/json when nil.
	Codec Codec
}

// Codec serializes a staged payload to bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Log is the staged-event log bound to one transaction attempt.
type Log struct {
	events []Event
	now    func() time.Time
}

// New returns an empty Log. nowFn is injectable for deterministic tests; pass
// nil to use time.Now.
func New(nowFn func() time.Time) *Log {
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Log{now: nowFn}
}

// Stage serializes payload, computes default attributes, merges any
// caller-supplied attributes over them, mints a fresh outbox-row id, appends
// the event, and returns the minted id.
func (l *Log) Stage(topic string, payload any, opts StageOptions) uuid.UUID {
	codec := opts.Codec
	if codec == nil {
		codec = jsonCodec{}
	}

	data, err := codec.Marshal(payload)
	if err != nil {
		// Staging is in-memory; a marshal failure is a programmer error in the
		// caller's payload type, not a transient condition to retry. Staging
		// happens under the runner's fn, which already propagates panics as
		// transaction failures (rollback), so we panic rather than return an
		// error the caller is likely to ignore.
		panic("stagedlog: failed to marshal payload: " + err.Error())
	}

	id := uuid.New()

	producedAt := l.now().UTC()
	attrs := map[string]string{}

	if p, ok := payload.(Payload); ok {
		if eid := p.EventID(); eid != "" {
			attrs["eventId"] = eid
		}

		if name := p.EventName(); name != "" {
			attrs["eventName"] = name
		}

		if t := p.ProducedAt(); !t.IsZero() {
			producedAt = t.UTC()
		}
	}

	attrs["producedAt"] = producedAt.Format(time.RFC3339Nano)

	for k, v := range opts.Attributes {
		attrs[k] = v
	}

	l.events = append(l.events, Event{
		ID:             id,
		Topic:          topic,
		SerializedData: data,
		Attributes:     attrs,
		OrderingKey:    opts.OrderingKey,
	})

	return id
}

// Events returns the staged events in insertion order. The returned slice is
// a copy; mutating it does not affect the log.
func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)

	return out
}

// Len reports how many events are currently staged.
func (l *Log) Len() int {
	return len(l.events)
}

// Reset clears the log. The runner calls this before each retry attempt so a
// rolled-back attempt's events never reach the broker or the outbox table.
func (l *Log) Reset() {
	l.events = nil
}
