package graph

import (
	dgraph "github.com/dominikbraun/graph"
)

// View is the subset of the graph a renderer shows at one zoom level,
// with locks computed over exactly that subset.
type View struct {
	Nodes  []Node
	Edges  []Edge
	Locked LockSet
}

// IsLocked reports whether id is locked within the view
func (v View) IsLocked(id string) bool {
	return v.Locked.Has(id)
}

// Open returns ErrNodeLocked when id is gated in this view
func (v View) Open(id string) error {
	return CheckUnlocked(v.Locked, id)
}

// BranchView returns the concept nodes of a branch. Edges come from the branch
// root's concept partition; when that is empty a linear chain over the concepts
// stands in.
func (s Snapshot) BranchView(branchID string) View {
	var nodes []Node
	for _, n := range s.Nodes {
		if n.BranchID == branchID && n.Kind == KindConcept {
			nodes = append(nodes, n)
		}
	}

	var edges []Edge
	if root, ok := s.Root(branchID); ok {
		edges = append(edges, s.ConceptEdges[root.ID]...)
	}
	if len(edges) == 0 {
		edges = linearFallback(nodes)
	}

	return View{Nodes: nodes, Edges: edges, Locked: ComputeLocked(nodes, edges)}
}

// ConceptView returns a concept and its subconcepts. The concept's parent is
// cleared so nothing dangles outside the view. Every subconcept without an
// incoming explicit edge gets a structural entry edge from the concept.
func (s Snapshot) ConceptView(conceptID string) View {
	var nodes []Node
	if concept, ok := s.Node(conceptID); ok {
		concept.ParentID = ""
		nodes = append(nodes, concept)
	}
	for _, n := range s.Nodes {
		if n.Kind == KindSubconcept && n.ParentID == conceptID {
			nodes = append(nodes, n)
		}
	}

	explicit := s.SubconceptEdges[conceptID]
	incoming := make(map[string]bool, len(explicit))
	for _, e := range explicit {
		incoming[e.Target] = true
	}

	edges := append([]Edge(nil), explicit...)
	for _, n := range nodes {
		if n.Kind == KindSubconcept && !incoming[n.ID] {
			edges = append(edges, Edge{Source: conceptID, Target: n.ID, Structural: true})
		}
	}

	return View{Nodes: nodes, Edges: edges, Locked: ComputeLocked(nodes, edges)}
}

// Ordered returns the view's node ids in dependency order, ties broken by
// store order. Cyclic views fall back to store order.
func (v View) Ordered() []string {
	position := make(map[string]int, len(v.Nodes))
	ids := make([]string, 0, len(v.Nodes))
	g := dgraph.New(dgraph.StringHash, dgraph.Directed())
	for i, n := range v.Nodes {
		if _, dup := position[n.ID]; dup {
			continue
		}
		position[n.ID] = i
		ids = append(ids, n.ID)
		_ = g.AddVertex(n.ID)
	}
	for _, e := range v.Edges {
		_ = g.AddEdge(e.Source, e.Target)
	}

	order, err := dgraph.StableTopologicalSort(g, func(a, b string) bool {
		return position[a] < position[b]
	})
	if err != nil {
		return ids
	}
	return order
}

func linearFallback(nodes []Node) []Edge {
	if len(nodes) < 2 {
		return nil
	}
	edges := make([]Edge, 0, len(nodes)-1)
	for i := 0; i < len(nodes)-1; i++ {
		edges = append(edges, Edge{Source: nodes[i].ID, Target: nodes[i+1].ID})
	}
	return edges
}
