package resolve

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/sprout/graph"
)

func nodeCreated(id string) graph.Mutation {
	return graph.NodeCreated{Node: graph.Node{ID: id, Kind: graph.KindConcept}}
}

func edgeCreated(source, target string) graph.Mutation {
	return graph.EdgeCreated{Edge: graph.Edge{Source: source, Target: target}}
}

func emittedEdges(out []graph.Mutation) []graph.EdgeKey {
	var keys []graph.EdgeKey
	for _, m := range out {
		if ec, ok := m.(graph.EdgeCreated); ok {
			keys = append(keys, ec.Edge.Key())
		}
	}
	return keys
}

func runAll(r *Resolver, events []graph.Mutation) []graph.Mutation {
	var out []graph.Mutation
	for _, e := range events {
		out = append(out, r.Resolve(e)...)
	}
	return out
}

func TestResolve_ResolutionTiming(t *testing.T) {
	r := New()

	assert.Empty(t, r.Resolve(edgeCreated("A", "B")))
	assert.Equal(t, 1, r.Pending())

	out := r.Resolve(nodeCreated("A"))
	assert.Len(t, out, 1, "B is still missing")
	assert.Empty(t, emittedEdges(out))

	out = r.Resolve(nodeCreated("B"))
	require.Len(t, out, 2)
	assert.Equal(t, graph.TypeNodeCreated, out[0].MutationType())
	assert.Equal(t, []graph.EdgeKey{{Source: "A", Target: "B"}}, emittedEdges(out))
	assert.Zero(t, r.Pending())
}

func TestResolve_BothMissingKeysOnTarget(t *testing.T) {
	r := New()
	r.Resolve(edgeCreated("A", "B"))

	r.mu.Lock()
	_, onTarget := r.pending["B"]
	_, onSource := r.pending["A"]
	r.mu.Unlock()

	assert.True(t, onTarget)
	assert.False(t, onSource)
}

func TestResolve_TargetFirstStillResolves(t *testing.T) {
	// keyed on B; B arrives first, edge must move to A rather than be lost
	r := New()
	r.Resolve(edgeCreated("A", "B"))

	assert.Empty(t, emittedEdges(r.Resolve(nodeCreated("B"))))
	assert.Equal(t, 1, r.Pending())

	assert.Equal(t, []graph.EdgeKey{{Source: "A", Target: "B"}}, emittedEdges(r.Resolve(nodeCreated("A"))))
}

func TestResolve_KnownEndpointsEmitImmediately(t *testing.T) {
	r := New()
	r.SeedKnownNodes([]string{"A", "B"})

	out := r.Resolve(edgeCreated("A", "B"))
	assert.Equal(t, []graph.EdgeKey{{Source: "A", Target: "B"}}, emittedEdges(out))
}

func TestResolve_OrderIndependence(t *testing.T) {
	events := []graph.Mutation{
		nodeCreated("A"),
		nodeCreated("B"),
		nodeCreated("C"),
		edgeCreated("A", "B"),
		edgeCreated("B", "C"),
		edgeCreated("A", "C"),
		edgeCreated("C", "X"), // X never arrives
	}
	want := []graph.EdgeKey{
		{Source: "A", Target: "B"},
		{Source: "A", Target: "C"},
		{Source: "B", Target: "C"},
	}

	permute(events, func(order []graph.Mutation) {
		r := New()
		got := emittedEdges(runAll(r, order))
		sort.Slice(got, func(i, j int) bool {
			if got[i].Source != got[j].Source {
				return got[i].Source < got[j].Source
			}
			return got[i].Target < got[j].Target
		})
		if !assert.Equal(t, want, got) {
			t.FailNow()
		}
		assertNoEdgeBeforeEndpoints(t, order)
	})
}

// assertNoEdgeBeforeEndpoints replays order and checks each emitted edge
// against the nodes created so far.
func assertNoEdgeBeforeEndpoints(t *testing.T, order []graph.Mutation) {
	t.Helper()
	r := New()
	seen := map[string]bool{}
	for _, m := range order {
		for _, out := range r.Resolve(m) {
			switch out := out.(type) {
			case graph.NodeCreated:
				seen[out.Node.ID] = true
			case graph.EdgeCreated:
				require.True(t, seen[out.Edge.Source] && seen[out.Edge.Target], "edge %v emitted early", out.Edge)
			}
		}
	}
}

func TestResolve_LostEdge(t *testing.T) {
	r := New()
	r.Resolve(edgeCreated("A", "B"))
	r.Resolve(graph.NodeRemoved{NodeID: "B"})
	assert.Zero(t, r.Pending())

	out := runAll(r, []graph.Mutation{nodeCreated("A"), nodeCreated("B")})
	assert.Empty(t, emittedEdges(out))
}

func TestResolve_RemovingOtherEndpointDropsEdge(t *testing.T) {
	// edge waits on B, but A is removed first
	r := New()
	r.Resolve(nodeCreated("A"))
	r.Resolve(edgeCreated("A", "B"))
	r.Resolve(graph.NodeRemoved{NodeID: "A"})

	assert.Zero(t, r.Pending())
	assert.False(t, r.Known("A"))
	assert.Empty(t, emittedEdges(r.Resolve(nodeCreated("B"))))
}

func TestResolve_EdgeRemovedPassesThroughAndCancelsPending(t *testing.T) {
	r := New()
	r.Resolve(edgeCreated("A", "B"))

	out := r.Resolve(graph.EdgeRemoved{Source: "A", Target: "B"})
	require.Len(t, out, 1)
	assert.Equal(t, graph.EdgeRemoved{Source: "A", Target: "B"}, out[0])
	assert.Zero(t, r.Pending())
}

func TestResolve_DuplicatePendingEdge(t *testing.T) {
	r := New()
	r.Resolve(edgeCreated("A", "B"))
	r.Resolve(edgeCreated("A", "B"))
	assert.Equal(t, 1, r.Pending())
}

func TestResolve_SeedClearsPending(t *testing.T) {
	r := New()
	r.Resolve(nodeCreated("old"))
	r.Resolve(edgeCreated("A", "B"))

	r.SeedKnownNodes([]string{"A"})

	assert.Zero(t, r.Pending())
	assert.True(t, r.Known("A"))
	assert.False(t, r.Known("old"))
}

func TestResolve_SideChannelPassesThrough(t *testing.T) {
	r := New()
	activity := graph.ActivityEvent{Event: EventToolCall}
	fallback := graph.FallbackResponse{Payload: []byte(`{}`)}

	assert.Equal(t, []graph.Mutation{activity}, r.Resolve(activity))
	assert.Equal(t, []graph.Mutation{fallback}, r.Resolve(fallback))
	assert.Nil(t, r.Resolve(nil))
}

// permute calls fn with every ordering of items (Heap's algorithm)
func permute(items []graph.Mutation, fn func([]graph.Mutation)) {
	a := append([]graph.Mutation(nil), items...)
	c := make([]int, len(a))
	fn(append([]graph.Mutation(nil), a...))
	for i := 0; i < len(a); {
		if c[i] < i {
			if i%2 == 0 {
				a[0], a[i] = a[i], a[0]
			} else {
				a[c[i]], a[i] = a[i], a[c[i]]
			}
			fn(append([]graph.Mutation(nil), a...))
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
}
