package graph

import (
	"sort"

	dgraph "github.com/dominikbraun/graph"
	"github.com/teranos/sprout/errors"
)

// LockedMessage is the user-facing explanation for refusing a locked node
const LockedMessage = "This node is locked. Complete all parent nodes first."

// LockSet is the set of node ids gated by an incomplete direct prerequisite
type LockSet map[string]struct{}

// Has reports whether id is locked
func (s LockSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the locked ids in sorted order
func (s LockSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ComputeLocked returns the nodes gated by an incomplete direct parent.
//
// Only non-structural edges whose endpoints are both in nodes are considered.
// A node is locked iff it is incomplete, has at least one incoming edge, and
// at least one source of those edges is incomplete. Ancestors further up the
// chain are deliberately ignored.
//
// The result depends only on the arguments; nothing is cached between calls.
func ComputeLocked(nodes []Node, edges []Edge) LockSet {
	predecessors := predecessorIndex(nodes, edges)

	completed := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		completed[n.ID] = n.Completed
	}

	locked := make(LockSet)
	for _, n := range nodes {
		if n.Completed {
			continue
		}
		for parent := range predecessors[n.ID] {
			if !completed[parent] {
				locked[n.ID] = struct{}{}
				break
			}
		}
	}
	return locked
}

// IsLocked reports whether id is locked given nodes and edges.
func IsLocked(nodes []Node, edges []Edge, id string) bool {
	return ComputeLocked(nodes, edges).Has(id)
}

// CheckUnlocked returns ErrNodeLocked with a user hint when id is locked.
func CheckUnlocked(locked LockSet, id string) error {
	if !locked.Has(id) {
		return nil
	}
	return errors.WithHint(errors.Wrapf(errors.ErrNodeLocked, "node %s", id), LockedMessage)
}

// predecessorIndex maps each node id to the set of its direct gating parents.
func predecessorIndex(nodes []Node, edges []Edge) map[string]map[string]dgraph.Edge[string] {
	g := dgraph.New(dgraph.StringHash, dgraph.Directed())

	for _, n := range nodes {
		// Duplicate ids collapse into one vertex
		_ = g.AddVertex(n.ID)
	}

	for _, e := range edges {
		if e.Structural {
			continue
		}
		// Edges to vertices outside the node set fail with ErrVertexNotFound,
		// duplicates with ErrEdgeAlreadyExists; both are skipped.
		_ = g.AddEdge(e.Source, e.Target)
	}

	predecessors, err := g.PredecessorMap()
	if err != nil {
		// Only fails for stores that cannot enumerate; the in-memory store always can
		return map[string]map[string]dgraph.Edge[string]{}
	}
	return predecessors
}
