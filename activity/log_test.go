package activity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/graph"
)

func event(name, payload string) graph.ActivityEvent {
	return graph.ActivityEvent{Event: name, Payload: []byte(payload)}
}

func TestRecord(t *testing.T) {
	l := NewLog()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	entry, err := l.Record(event("tool_call", `{"agent":"topic","tool":"create_concept","input":{"title":"Vectors"}}`))
	require.NoError(t, err)

	_, err = uuid.Parse(entry.ID)
	assert.NoError(t, err)
	assert.Equal(t, fixed, entry.Timestamp)
	assert.Equal(t, ToolCall, entry.Type)
	assert.Equal(t, "topic", entry.Agent)
	assert.Equal(t, "create_concept", entry.Tool)
	assert.Equal(t, map[string]any{"title": "Vectors"}, entry.Input)
	assert.Equal(t, []Entry{entry}, l.Entries())
}

func TestRecord_PreservesOrder(t *testing.T) {
	l := NewLog()
	for _, name := range []string{"agent_start", "tool_call", "tool_result", "agent_done"} {
		_, err := l.Record(event(name, `{"agent":"topic"}`))
		require.NoError(t, err)
	}

	var types []Type
	for _, e := range l.Entries() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []Type{AgentStart, ToolCall, ToolResult, AgentDone}, types)
}

func TestRecord_LooseFields(t *testing.T) {
	l := NewLog()

	entry, err := l.Record(event("agent_error", `{"agent":42,"message":"rate limited","input":"not a map"}`))
	require.NoError(t, err)

	assert.Empty(t, entry.Agent)
	assert.Nil(t, entry.Input)
	assert.Equal(t, "rate limited", entry.Message)
}

func TestRecord_Rejects(t *testing.T) {
	l := NewLog()

	_, err := l.Record(event("node_created", `{}`))
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = l.Record(event("agent_done", `[1]`))
	assert.Error(t, err)

	assert.Zero(t, l.Len())
}

func TestEntriesIsACopy(t *testing.T) {
	l := NewLog()
	_, _ = l.Record(event("agent_start", `{"agent":"topic"}`))

	entries := l.Entries()
	entries[0].Agent = "changed"

	assert.Equal(t, "topic", l.Entries()[0].Agent)
}

func TestClear(t *testing.T) {
	l := NewLog()
	_, _ = l.Record(event("agent_start", ``))
	l.Clear()
	assert.Empty(t, l.Entries())
}

func TestSubscribe(t *testing.T) {
	l := NewLog()
	var got []Entry
	l.Subscribe(func(e Entry) { got = append(got, e) })

	entry, err := l.Record(event("agent_done", `{"summary":"3 concepts"}`))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, entry, got[0])
	assert.Equal(t, "3 concepts", got[0].Summary)
}
