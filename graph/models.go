// Package graph holds the learning-path graph data model, the mutation sum
// type, the canonical graph store and the lock engine.
package graph

// Kind is the role of a node within a branch
type Kind string

const (
	KindRoot       Kind = "root"
	KindConcept    Kind = "concept"
	KindSubconcept Kind = "subconcept"
)

// Valid reports whether k is one of the known node kinds
func (k Kind) Valid() bool {
	switch k {
	case KindRoot, KindConcept, KindSubconcept:
		return true
	}
	return false
}

// Node is a vertex in the learning dependency graph, as sent by the backend.
type Node struct {
	ID            string  `json:"id"`
	UserID        string  `json:"userId,omitempty"`
	Kind          Kind    `json:"type"`
	BranchID      string  `json:"branchId,omitempty"` // empty for nodes outside a branch
	ParentID      string  `json:"parentId,omitempty"` // empty for roots
	Title         string  `json:"title"`
	Desc          string  `json:"desc,omitempty"`
	AccuracyScore float64 `json:"accuracyScore,omitempty"`
	CreatedAt     string  `json:"createdAt,omitempty"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`

	// Derived locally, never sent by the backend
	Completed bool  `json:"completed"`
	State     State `json:"state"`
}

// State is the lifecycle of a node inside the store: Active -> Removing -> Gone
type State int

const (
	StateActive State = iota
	StateRemoving
	StateGone
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRemoving:
		return "removing"
	case StateGone:
		return "gone"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name; unknown names decode as active
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "removing":
		*s = StateRemoving
	case "gone":
		*s = StateGone
	default:
		*s = StateActive
	}
	return nil
}

// Edge is a directed relationship between two nodes.
// Structural edges only anchor layout and never gate locking.
type Edge struct {
	Source     string `json:"sourceNodeId"`
	Target     string `json:"targetNodeId"`
	Structural bool   `json:"structural,omitempty"`
}

// EdgeKey is the logical identity of an edge
type EdgeKey struct {
	Source string
	Target string
}

// Key returns the (source, target) identity of e
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target}
}

// Touches reports whether id is either endpoint of e
func (e Edge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}

// Progress is a persisted learning record for one node
type Progress struct {
	ID           string  `json:"id"`
	UserID       string  `json:"userId"`
	NodeID       string  `json:"nodeId"`
	CompletedAt  *string `json:"completedAt"`
	MasteryScore float64 `json:"masteryScore"`
}
