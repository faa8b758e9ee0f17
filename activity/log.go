// Package activity projects pipeline lifecycle events into an append-only log.
// The log is observability only and never feeds back into graph state.
package activity

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/logger"
	"go.uber.org/zap"
)

// Type is a pipeline lifecycle event name
type Type string

const (
	AgentStart Type = "agent_start"
	ToolCall   Type = "tool_call"
	ToolResult Type = "tool_result"
	AgentDone  Type = "agent_done"
	AgentError Type = "agent_error"
)

func (t Type) valid() bool {
	switch t {
	case AgentStart, ToolCall, ToolResult, AgentDone, AgentError:
		return true
	}
	return false
}

// Entry is one recorded lifecycle event
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      Type           `json:"type"`
	Agent     string         `json:"agent,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Log is an ordered, append-only record of lifecycle events
type Log struct {
	mu          sync.RWMutex
	entries     []Entry
	subscribers []func(Entry)

	now func() time.Time
	log *zap.SugaredLogger
}

// NewLog creates an empty Log
func NewLog() *Log {
	return &Log{
		now: time.Now,
		log: logger.ComponentLogger("activity"),
	}
}

// Subscribe registers fn to receive each entry as it is recorded
func (l *Log) Subscribe(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// Record appends the event to the log. Payload fields of unexpected types are ignored.
func (l *Log) Record(ev graph.ActivityEvent) (Entry, error) {
	t := Type(ev.Event)
	if !t.valid() {
		return Entry{}, errors.NewInvalidRequestError("unknown activity type %q", ev.Event)
	}

	var payload map[string]any
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return Entry{}, errors.Wrapf(err, "failed to decode %s payload", ev.Event)
		}
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Timestamp: l.now(),
		Type:      t,
		Agent:     stringField(payload, "agent"),
		Tool:      stringField(payload, "tool"),
		Summary:   stringField(payload, "summary"),
		Message:   stringField(payload, "message"),
	}
	if input, ok := payload["input"].(map[string]any); ok {
		entry.Input = input
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	subscribers := append([]func(Entry){}, l.subscribers...)
	l.mu.Unlock()

	l.log.Debugw("Recorded activity",
		logger.FieldEntryID, entry.ID,
		"type", entry.Type,
		logger.FieldAgent, entry.Agent,
		logger.FieldTool, entry.Tool)

	for _, fn := range subscribers {
		fn(entry)
	}
	return entry, nil
}

// Entries returns a copy of the log in recording order
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of recorded entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the log
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
