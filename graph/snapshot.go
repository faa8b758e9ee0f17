package graph

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is an immutable copy of the store's nodes and edges.
type Snapshot struct {
	Nodes           []Node            `json:"nodes"`
	Edges           []Edge            `json:"edges"` // every known edge, classified or not
	ConceptEdges    map[string][]Edge `json:"concept_edges"`
	SubconceptEdges map[string][]Edge `json:"subconcept_edges"`
}

// Node looks up a node by id
func (s Snapshot) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Root returns the root node of a branch
func (s Snapshot) Root(branchID string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.Kind == KindRoot && n.BranchID == branchID {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs returns the ids of every node in the snapshot
func (s Snapshot) NodeIDs() []string {
	ids := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// AllDependencyEdges flattens both partitions, concept edges first, keys in sorted order
func (s Snapshot) AllDependencyEdges() []Edge {
	var out []Edge
	for _, part := range []map[string][]Edge{s.ConceptEdges, s.SubconceptEdges} {
		keys := make([]string, 0, len(part))
		for k := range part {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, part[k]...)
		}
	}
	return out
}

// Locked computes the lock set over every node and known edge
func (s Snapshot) Locked() LockSet {
	return ComputeLocked(s.Nodes, s.Edges)
}

// Hash returns a fingerprint of the snapshot so consumers can skip redundant renders
func (s Snapshot) Hash() string {
	// encoding/json sorts map keys, so equal snapshots encode identically
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", xxhash.Sum64(data))
}
