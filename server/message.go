package server

import (
	"encoding/json"
	"time"

	"github.com/teranos/sprout/activity"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/session"
)

// Message types pushed to WebSocket clients
const (
	MessageBatch    = "batch"
	MessageActivity = "activity"
	MessageError    = "error"
)

// Message is the envelope of every WebSocket push
type Message struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Hash      string          `json:"hash,omitempty"`
	Mutations []MutationInfo  `json:"mutations,omitempty"`
	Snapshot  *graph.Snapshot `json:"snapshot,omitempty"`
	Locked    []string        `json:"locked,omitempty"`
	Entry     *activity.Entry `json:"entry,omitempty"`
	Error     string          `json:"error,omitempty"`
	Hint      string          `json:"hint,omitempty"`
}

// MutationInfo is the wire form of one applied mutation
type MutationInfo struct {
	Type   graph.MutationType `json:"type"`
	NodeID string             `json:"nodeId,omitempty"`
	Source string             `json:"sourceNodeId,omitempty"`
	Target string             `json:"targetNodeId,omitempty"`
}

func newBatchMessage(r session.BatchResult, hash string) Message {
	snap := r.Snapshot
	m := Message{
		Type:     MessageBatch,
		Hash:     hash,
		Snapshot: &snap,
		Locked:   r.Locked.IDs(),
	}
	for _, mut := range r.Mutations {
		info := MutationInfo{Type: mut.MutationType()}
		switch mut := mut.(type) {
		case graph.NodeCreated:
			info.NodeID = mut.Node.ID
		case graph.NodeRemoved:
			info.NodeID = mut.NodeID
		case graph.EdgeCreated:
			info.Source, info.Target = mut.Edge.Source, mut.Edge.Target
		case graph.EdgeRemoved:
			info.Source, info.Target = mut.Source, mut.Target
		}
		m.Mutations = append(m.Mutations, info)
	}
	return m
}

func encode(m Message) ([]byte, error) {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	return json.Marshal(m)
}
