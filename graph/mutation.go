package graph

import "encoding/json"

// MutationType tags each Mutation variant
type MutationType string

const (
	TypeNodeCreated MutationType = "node_created"
	TypeEdgeCreated MutationType = "edge_created"
	TypeNodeRemoved MutationType = "node_removed"
	TypeEdgeRemoved MutationType = "edge_removed"
	TypeActivity    MutationType = "activity"
	TypeFallback    MutationType = "fallback"
)

// Mutation is one incremental, typed change derived from a stream event.
// The concrete types below are the only implementations.
type Mutation interface {
	MutationType() MutationType
	isMutation()
}

// NodeCreated announces a new node
type NodeCreated struct {
	Node Node
}

// EdgeCreated announces a dependency edge whose endpoints both exist
type EdgeCreated struct {
	Edge Edge
}

// NodeRemoved announces that a node is going away
type NodeRemoved struct {
	NodeID string
}

// EdgeRemoved announces removal of the logical edge (Source, Target)
type EdgeRemoved struct {
	Source string
	Target string
}

// ActivityEvent carries a pipeline lifecycle event unrelated to graph structure
type ActivityEvent struct {
	Event   string
	Payload json.RawMessage
}

// FallbackResponse wraps the single JSON document of a non-streaming response
type FallbackResponse struct {
	Payload json.RawMessage
}

func (NodeCreated) MutationType() MutationType      { return TypeNodeCreated }
func (EdgeCreated) MutationType() MutationType      { return TypeEdgeCreated }
func (NodeRemoved) MutationType() MutationType      { return TypeNodeRemoved }
func (EdgeRemoved) MutationType() MutationType      { return TypeEdgeRemoved }
func (ActivityEvent) MutationType() MutationType    { return TypeActivity }
func (FallbackResponse) MutationType() MutationType { return TypeFallback }

func (NodeCreated) isMutation()      {}
func (EdgeCreated) isMutation()      {}
func (NodeRemoved) isMutation()      {}
func (EdgeRemoved) isMutation()      {}
func (ActivityEvent) isMutation()    {}
func (FallbackResponse) isMutation() {}
