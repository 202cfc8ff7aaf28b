package stagedlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	At   time.Time `json:"-"`
}

func (p testPayload) EventID() string       { return p.ID }
func (p testPayload) EventName() string     { return p.Name }
func (p testPayload) ProducedAt() time.Time { return p.At }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStage_DefaultAttributes(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(fixedClock(clock))

	id := l.Stage("topic.v1", testPayload{ID: "e1", Name: "n"}, StageOptions{})

	require.Equal(t, 1, l.Len())
	ev := l.Events()[0]
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, "topic.v1", ev.Topic)
	assert.Equal(t, "e1", ev.Attributes["eventId"])
	assert.Equal(t, "n", ev.Attributes["eventName"])
	assert.Equal(t, "2024-01-01T00:00:00Z", ev.Attributes["producedAt"])
	assert.JSONEq(t, `{"id":"e1","name":"n"}`, string(ev.SerializedData))
}

func TestStage_PayloadProducedAtOverridesStageTime(t *testing.T) {
	stageTime := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	payloadTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	l := New(fixedClock(stageTime))
	l.Stage("topic.v1", testPayload{ID: "e1", Name: "n", At: payloadTime}, StageOptions{})

	assert.Equal(t, "2024-01-01T00:00:00Z", l.Events()[0].Attributes["producedAt"])
}

func TestStage_CallerAttributesOverrideDefaults(t *testing.T) {
	l := New(fixedClock(time.Now()))

	l.Stage("topic.v1", testPayload{ID: "e1", Name: "n"}, StageOptions{
		Attributes: map[string]string{"eventName": "overridden"},
	})

	assert.Equal(t, "overridden", l.Events()[0].Attributes["eventName"])
}

func TestStage_MintsFreshIDPerCall(t *testing.T) {
	l := New(nil)

	id1 := l.Stage("t", testPayload{ID: "e1"}, StageOptions{})
	id2 := l.Stage("t", testPayload{ID: "e1"}, StageOptions{})

	assert.NotEqual(t, id1, id2)
	require.Equal(t, 2, l.Len())
}

func TestStage_NonPayloadValue_NoDefaultIdentityAttributes(t *testing.T) {
	l := New(nil)

	l.Stage("t", map[string]any{"foo": "bar"}, StageOptions{})

	ev := l.Events()[0]
	_, hasEventID := ev.Attributes["eventId"]
	_, hasEventName := ev.Attributes["eventName"]
	assert.False(t, hasEventID)
	assert.False(t, hasEventName)
	assert.Contains(t, ev.Attributes, "producedAt")
}

func TestReset_ClearsEvents(t *testing.T) {
	l := New(nil)
	l.Stage("t", testPayload{ID: "e1"}, StageOptions{})
	require.Equal(t, 1, l.Len())

	l.Reset()

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Events())
}

func TestEvents_ReturnsCopy(t *testing.T) {
	l := New(nil)
	l.Stage("t", testPayload{ID: "e1"}, StageOptions{})

	evs := l.Events()
	evs[0].Topic = "mutated"

	assert.Equal(t, "t", l.Events()[0].Topic)
}

func TestStage_OrderingKeyPassthrough(t *testing.T) {
	l := New(nil)
	l.Stage("t", testPayload{ID: "e1"}, StageOptions{OrderingKey: "account-123"})

	assert.Equal(t, "account-123", l.Events()[0].OrderingKey)
}

func TestStage_MarshalFailurePanics(t *testing.T) {
	l := New(nil)

	assert.Panics(t, func() {
		l.Stage("t", make(chan int), StageOptions{})
	})
}
