package resolve

import (
	"encoding/json"

	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/stream"
)

// Wire event types
const (
	EventNodeCreated = "node_created"
	EventEdgeCreated = "edge_created"
	EventNodeRemoved = "node_removed"
	EventEdgeRemoved = "edge_removed"

	EventAgentStart = "agent_start"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventAgentDone  = "agent_done"
	EventAgentError = "agent_error"
)

// IsActivity reports whether eventType is a pipeline lifecycle event
func IsActivity(eventType string) bool {
	switch eventType {
	case EventAgentStart, EventToolCall, EventToolResult, EventAgentDone, EventAgentError:
		return true
	}
	return false
}

type edgePayload struct {
	SourceNodeID string `json:"sourceNodeId"`
	TargetNodeID string `json:"targetNodeId"`
}

func (p edgePayload) validate(eventType string) error {
	if p.SourceNodeID == "" || p.TargetNodeID == "" {
		return errors.Wrapf(errors.ErrMalformedFrame, "%s event missing endpoint", eventType)
	}
	return nil
}

// Decode turns one stream event into a mutation. It returns nil with no error
// for event types that carry nothing for the graph.
func Decode(e stream.Event) (graph.Mutation, error) {
	switch {
	case e.Type == EventNodeCreated:
		// producers send {"node": {...}}; a bare record is accepted too
		var wrapped struct {
			Node *graph.Node `json:"node"`
		}
		if err := json.Unmarshal(e.Data, &wrapped); err != nil {
			return nil, malformed(e, err)
		}
		node := wrapped.Node
		if node == nil {
			node = &graph.Node{}
			if err := json.Unmarshal(e.Data, node); err != nil {
				return nil, malformed(e, err)
			}
		}
		if node.ID == "" {
			return nil, errors.Wrap(errors.ErrMalformedFrame, "node_created event missing node id")
		}
		return graph.NodeCreated{Node: *node}, nil

	case e.Type == EventEdgeCreated:
		var wrapped struct {
			Edge *edgePayload `json:"edge"`
		}
		if err := json.Unmarshal(e.Data, &wrapped); err != nil {
			return nil, malformed(e, err)
		}
		edge := wrapped.Edge
		if edge == nil {
			edge = &edgePayload{}
			if err := json.Unmarshal(e.Data, edge); err != nil {
				return nil, malformed(e, err)
			}
		}
		if err := edge.validate(e.Type); err != nil {
			return nil, err
		}
		return graph.EdgeCreated{Edge: graph.Edge{Source: edge.SourceNodeID, Target: edge.TargetNodeID}}, nil

	case e.Type == EventNodeRemoved:
		var payload struct {
			NodeID string `json:"nodeId"`
		}
		if err := json.Unmarshal(e.Data, &payload); err != nil {
			return nil, malformed(e, err)
		}
		if payload.NodeID == "" {
			return nil, errors.Wrap(errors.ErrMalformedFrame, "node_removed event missing nodeId")
		}
		return graph.NodeRemoved{NodeID: payload.NodeID}, nil

	case e.Type == EventEdgeRemoved:
		var payload edgePayload
		if err := json.Unmarshal(e.Data, &payload); err != nil {
			return nil, malformed(e, err)
		}
		if err := payload.validate(e.Type); err != nil {
			return nil, err
		}
		return graph.EdgeRemoved{Source: payload.SourceNodeID, Target: payload.TargetNodeID}, nil

	case IsActivity(e.Type):
		return graph.ActivityEvent{Event: e.Type, Payload: e.Data}, nil

	case e.Type == stream.EventJSONResponse:
		return graph.FallbackResponse{Payload: e.Data}, nil
	}

	return nil, nil
}

func malformed(e stream.Event, err error) error {
	wrapped := errors.Mark(errors.Wrapf(err, "failed to decode %s payload", e.Type), errors.ErrMalformedFrame)
	return errors.WithDetail(wrapped, string(e.Data))
}
