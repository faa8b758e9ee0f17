package graph

import (
	"sync"
	"time"

	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/logger"
	"go.uber.org/zap"
)

// Change reports a node lifecycle transition
type Change struct {
	NodeID string
	From   State
	To     State
}

// entry is a node plus its pending removal, if any
type entry struct {
	node  Node
	timer *time.Timer
	gen   uint64 // bumped on every transition, stale timers compare against it
}

// Store is the canonical, partitioned record of nodes and dependency edges.
// It is safe for concurrent use; removal transitions fire on timer goroutines.
type Store struct {
	mu sync.RWMutex

	log   *zap.SugaredLogger
	grace time.Duration

	nodes     map[string]*entry
	order     []string // node ids in insertion order
	completed map[string]bool

	edges      []Edge
	edgeIndex  map[EdgeKey]struct{}
	concept    map[string][]Edge // keyed by root id
	subconcept map[string][]Edge // keyed by concept id

	onChange []func(Change)
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithRemovalGrace sets how long a removed node stays in the removing state
func WithRemovalGrace(d time.Duration) StoreOption {
	return func(s *Store) { s.grace = d }
}

// WithStoreLogger overrides the component logger
func WithStoreLogger(l *zap.SugaredLogger) StoreOption {
	return func(s *Store) { s.log = l }
}

// NewStore creates an empty store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		log:        logger.ComponentLogger("graph.store"),
		grace:      am.DefaultRemovalGraceMS * time.Millisecond,
		nodes:      make(map[string]*entry),
		completed:  make(map[string]bool),
		edgeIndex:  make(map[EdgeKey]struct{}),
		concept:    make(map[string][]Edge),
		subconcept: make(map[string][]Edge),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a callback for lifecycle transitions.
// Callbacks run outside the store lock.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Apply merges a batch of mutations into the store in order.
// Activity and fallback mutations carry no graph state and are ignored.
func (s *Store) Apply(batch []Mutation) {
	var changes []Change

	s.mu.Lock()
	for _, m := range batch {
		switch m := m.(type) {
		case NodeCreated:
			if c, ok := s.insertNode(m.Node); ok {
				changes = append(changes, c)
			}
		case NodeRemoved:
			if c, ok := s.markRemoving(m.NodeID); ok {
				changes = append(changes, c)
			}
		case EdgeCreated:
			s.addEdge(m.Edge)
		case EdgeRemoved:
			s.removeEdge(EdgeKey{Source: m.Source, Target: m.Target})
		}
	}
	s.mu.Unlock()

	s.log.Debugw("Applied batch", logger.FieldBatchSize, len(batch), "transitions", len(changes))
	s.notify(changes)
}

// insertNode adds n unless it already exists. A node that is still removing
// is revived and its pending deletion cancelled.
func (s *Store) insertNode(n Node) (Change, bool) {
	if e, ok := s.nodes[n.ID]; ok {
		if e.node.State != StateRemoving {
			return Change{}, false
		}
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.gen++
		e.node = s.withCompletion(n)
		e.node.State = StateActive
		return Change{NodeID: n.ID, From: StateRemoving, To: StateActive}, true
	}

	n = s.withCompletion(n)
	n.State = StateActive
	s.nodes[n.ID] = &entry{node: n}
	s.order = append(s.order, n.ID)
	return Change{}, false
}

func (s *Store) withCompletion(n Node) Node {
	n.Completed = n.Kind == KindRoot || s.completed[n.ID]
	return n
}

// markRemoving starts the Active -> Removing transition and schedules Gone.
func (s *Store) markRemoving(id string) (Change, bool) {
	e, ok := s.nodes[id]
	if !ok {
		return Change{}, false
	}
	if err := validateTransition(e.node.State, StateRemoving); err != nil {
		s.log.Debugw("Ignoring removal", logger.FieldNodeID, id, logger.FieldState, e.node.State, logger.FieldError, err)
		return Change{}, false
	}

	e.node.State = StateRemoving
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(s.grace, func() { s.finishRemoval(id, gen) })

	return Change{NodeID: id, From: StateActive, To: StateRemoving}, true
}

// finishRemoval completes Removing -> Gone unless the node was revived meanwhile.
func (s *Store) finishRemoval(id string, gen uint64) {
	s.mu.Lock()
	e, ok := s.nodes[id]
	if !ok || e.gen != gen || e.node.State != StateRemoving {
		s.mu.Unlock()
		return
	}

	delete(s.nodes, id)
	for i, nid := range s.order {
		if nid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	dropped := s.dropEdgesTouching(id)
	s.mu.Unlock()

	s.log.Debugw("Node gone", logger.FieldNodeID, id, "dropped_edges", dropped)
	s.notify([]Change{{NodeID: id, From: StateRemoving, To: StateGone}})
}

// addEdge records e in the raw list and, when classifiable, in its partition.
func (s *Store) addEdge(e Edge) {
	key := e.Key()
	if _, dup := s.edgeIndex[key]; dup {
		return
	}
	s.edgeIndex[key] = struct{}{}
	s.edges = append(s.edges, e)

	source, okS := s.nodes[e.Source]
	target, okT := s.nodes[e.Target]
	if !okS || !okT {
		return
	}

	partition, pkey := Classify(source.node, target.node)
	switch partition {
	case PartitionConcept:
		s.concept[pkey] = appendUnique(s.concept[pkey], e)
	case PartitionSubconcept:
		s.subconcept[pkey] = appendUnique(s.subconcept[pkey], e)
	default:
		s.log.Debugw("Edge left unclassified",
			logger.FieldSourceID, e.Source,
			logger.FieldTargetID, e.Target)
	}
}

func (s *Store) removeEdge(key EdgeKey) {
	match := func(e Edge) bool { return e.Key() == key }

	delete(s.edgeIndex, key)
	s.edges = removeWhere(s.edges, match)
	for k, list := range s.concept {
		s.concept[k] = removeWhere(list, match)
	}
	for k, list := range s.subconcept {
		s.subconcept[k] = removeWhere(list, match)
	}
}

// dropEdgesTouching removes every edge with id as an endpoint and returns the count.
func (s *Store) dropEdgesTouching(id string) int {
	match := func(e Edge) bool { return e.Touches(id) }

	before := len(s.edges)
	s.edges = removeWhere(s.edges, match)
	for key := range s.edgeIndex {
		if key.Source == id || key.Target == id {
			delete(s.edgeIndex, key)
		}
	}
	for k, list := range s.concept {
		s.concept[k] = removeWhere(list, match)
	}
	for k, list := range s.subconcept {
		s.subconcept[k] = removeWhere(list, match)
	}
	return before - len(s.edges)
}

// Replace swaps in a freshly loaded node collection and completion set.
// Pending removals are cancelled and edges to nodes that no longer exist are dropped.
func (s *Store) Replace(nodes []Node, completed map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.nodes {
		if e.timer != nil {
			e.timer.Stop()
		}
	}

	s.completed = make(map[string]bool, len(completed))
	for id, done := range completed {
		s.completed[id] = done
	}

	s.nodes = make(map[string]*entry, len(nodes))
	s.order = s.order[:0]
	for _, n := range nodes {
		if _, dup := s.nodes[n.ID]; dup {
			continue
		}
		n = s.withCompletion(n)
		n.State = StateActive
		s.nodes[n.ID] = &entry{node: n}
		s.order = append(s.order, n.ID)
	}

	var stale []string
	for key := range s.edgeIndex {
		if s.nodes[key.Source] == nil {
			stale = append(stale, key.Source)
		}
		if s.nodes[key.Target] == nil {
			stale = append(stale, key.Target)
		}
	}
	for _, id := range stale {
		s.dropEdgesTouching(id)
	}
}

// SetPartition replaces the edges of one partition wholesale, as loaded from the backend.
func (s *Store) SetPartition(p Partition, key string, edges []Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target map[string][]Edge
	switch p {
	case PartitionConcept:
		target = s.concept
	case PartitionSubconcept:
		target = s.subconcept
	default:
		return errors.Newf("cannot set edges for partition %s", p)
	}

	list := make([]Edge, 0, len(edges))
	for _, e := range edges {
		list = appendUnique(list, e)
		if _, dup := s.edgeIndex[e.Key()]; !dup {
			s.edgeIndex[e.Key()] = struct{}{}
			s.edges = append(s.edges, e)
		}
	}
	target[key] = list
	return nil
}

// Node returns the node with id, including nodes still removing
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return e.node, true
}

// NodeIDs returns every id currently in the store, in insertion order
func (s *Store) NodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Nodes:           make([]Node, 0, len(s.order)),
		Edges:           append([]Edge(nil), s.edges...),
		ConceptEdges:    copyPartition(s.concept),
		SubconceptEdges: copyPartition(s.subconcept),
	}
	for _, id := range s.order {
		snap.Nodes = append(snap.Nodes, s.nodes[id].node)
	}
	return snap
}

func (s *Store) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.RLock()
	callbacks := append([]func(Change){}, s.onChange...)
	s.mu.RUnlock()

	for _, c := range changes {
		for _, fn := range callbacks {
			fn(c)
		}
	}
}

// validateTransition enforces Active -> Removing -> Gone and Removing -> Active
func validateTransition(from, to State) error {
	switch {
	case from == StateActive && to == StateRemoving,
		from == StateRemoving && to == StateGone,
		from == StateRemoving && to == StateActive:
		return nil
	default:
		return errors.Newf("invalid node transition %s -> %s", from, to)
	}
}

func appendUnique(list []Edge, e Edge) []Edge {
	for _, existing := range list {
		if existing.Key() == e.Key() {
			return list
		}
	}
	return append(list, e)
}

func removeWhere(list []Edge, match func(Edge) bool) []Edge {
	out := list[:0]
	for _, e := range list {
		if !match(e) {
			out = append(out, e)
		}
	}
	return out
}

func copyPartition(src map[string][]Edge) map[string][]Edge {
	dst := make(map[string][]Edge, len(src))
	for k, list := range src {
		if len(list) == 0 {
			continue
		}
		dst[k] = append([]Edge(nil), list...)
	}
	return dst
}
