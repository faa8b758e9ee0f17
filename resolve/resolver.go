// Package resolve normalizes stream events into graph mutations and holds back
// edges until both of their endpoints are known.
package resolve

import (
	"sync"

	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/logger"
	"go.uber.org/zap"
)

// Resolver tracks which node ids exist and buffers edges that reference
// nodes not yet seen. An edge is never emitted before both endpoints are known.
type Resolver struct {
	mu      sync.Mutex
	log     *zap.SugaredLogger
	known   map[string]struct{}
	pending map[string][]graph.Edge // missing node id -> edges waiting on it
}

// New creates a Resolver with an empty known-node set
func New() *Resolver {
	return &Resolver{
		log:     logger.ComponentLogger("resolve"),
		known:   make(map[string]struct{}),
		pending: make(map[string][]graph.Edge),
	}
}

// SeedKnownNodes replaces the known-node set with ids and discards pending edges.
// Call it before a stream starts so existing nodes are not treated as missing.
func (r *Resolver) SeedKnownNodes(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.known = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		r.known[id] = struct{}{}
	}
	r.pending = make(map[string][]graph.Edge)
	r.log.Debugw("Seeded known nodes", logger.FieldCount, len(r.known))
}

// Known reports whether id is in the known-node set
func (r *Resolver) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.known[id]
	return ok
}

// Pending returns the number of edges waiting on a missing endpoint
func (r *Resolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, edges := range r.pending {
		n += len(edges)
	}
	return n
}

// Resolve applies one incoming mutation and returns what may be emitted downstream,
// in order. Activity and fallback mutations pass through untouched.
func (r *Resolver) Resolve(m graph.Mutation) []graph.Mutation {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := m.(type) {
	case graph.NodeCreated:
		return r.nodeCreated(m)
	case graph.EdgeCreated:
		return r.edgeCreated(m)
	case graph.NodeRemoved:
		return r.nodeRemoved(m)
	case graph.EdgeRemoved:
		r.dropPending(func(e graph.Edge) bool {
			return e.Source == m.Source && e.Target == m.Target
		})
		return []graph.Mutation{m}
	case nil:
		return nil
	default:
		return []graph.Mutation{m}
	}
}

func (r *Resolver) nodeCreated(m graph.NodeCreated) []graph.Mutation {
	id := m.Node.ID
	r.known[id] = struct{}{}
	out := []graph.Mutation{m}

	waiting := r.pending[id]
	delete(r.pending, id)

	for _, e := range waiting {
		other := e.Source
		if other == id {
			other = e.Target
		}
		if _, ok := r.known[other]; ok {
			out = append(out, graph.EdgeCreated{Edge: e})
			continue
		}
		// still waiting on the other endpoint
		r.buffer(other, e)
	}

	if len(waiting) > 0 {
		r.log.Debugw("Drained pending edges",
			logger.FieldNodeID, id,
			logger.FieldCount, len(out)-1,
			logger.FieldPending, len(waiting)-(len(out)-1))
	}
	return out
}

func (r *Resolver) edgeCreated(m graph.EdgeCreated) []graph.Mutation {
	e := m.Edge
	_, sourceKnown := r.known[e.Source]
	_, targetKnown := r.known[e.Target]

	switch {
	case sourceKnown && targetKnown:
		return []graph.Mutation{m}
	case !targetKnown:
		// both missing keys on the target
		r.buffer(e.Target, e)
	default:
		r.buffer(e.Source, e)
	}
	return nil
}

func (r *Resolver) nodeRemoved(m graph.NodeRemoved) []graph.Mutation {
	delete(r.known, m.NodeID)
	delete(r.pending, m.NodeID)
	// edges buffered under their other endpoint can never resolve either
	r.dropPending(func(e graph.Edge) bool { return e.Touches(m.NodeID) })
	return []graph.Mutation{m}
}

func (r *Resolver) buffer(missing string, e graph.Edge) {
	for _, existing := range r.pending[missing] {
		if existing.Key() == e.Key() {
			return
		}
	}
	r.pending[missing] = append(r.pending[missing], e)
	r.log.Debugw("Buffered edge",
		logger.FieldSourceID, e.Source,
		logger.FieldTargetID, e.Target,
		"missing", missing)
}

func (r *Resolver) dropPending(match func(graph.Edge) bool) {
	for key, edges := range r.pending {
		kept := edges[:0]
		for _, e := range edges {
			if !match(e) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(r.pending, key)
		} else {
			r.pending[key] = kept
		}
	}
}
