package batch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/sprout/graph"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sink records delivered batches
type sink struct {
	mu      sync.Mutex
	batches [][]graph.Mutation
}

func (s *sink) onFlush(batch []graph.Mutation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *sink) get() [][]graph.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]graph.Mutation(nil), s.batches...)
}

func removed(id string) graph.Mutation {
	return graph.NodeRemoved{NodeID: id}
}

func TestBuffer_OneFlushPerWindow(t *testing.T) {
	s := &sink{}
	b := New(40*time.Millisecond, s.onFlush)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		b.Push(removed(id))
	}

	assert.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	batches := s.get()
	require.Len(t, batches, 1)
	assert.Equal(t, []graph.Mutation{removed("a"), removed("b"), removed("c"), removed("d"), removed("e")}, batches[0])
	assert.Zero(t, b.Len())
}

func TestBuffer_FlushDeliversImmediately(t *testing.T) {
	s := &sink{}
	b := New(time.Hour, s.onFlush)

	b.Push(removed("a"))
	b.Push(removed("b"))
	b.Flush()

	batches := s.get()
	require.Len(t, batches, 1)
	assert.Equal(t, []graph.Mutation{removed("a"), removed("b")}, batches[0])
}

func TestBuffer_FlushEmptyIsNoop(t *testing.T) {
	s := &sink{}
	b := New(10*time.Millisecond, s.onFlush)

	b.Flush()
	time.Sleep(30 * time.Millisecond)

	assert.Zero(t, s.count())
}

func TestBuffer_FlushCancelsWindow(t *testing.T) {
	s := &sink{}
	b := New(30*time.Millisecond, s.onFlush)

	b.Push(removed("a"))
	b.Flush()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, s.count(), "stopped window must not deliver a second time")
}

func TestBuffer_NewWindowAfterDelivery(t *testing.T) {
	s := &sink{}
	b := New(20*time.Millisecond, s.onFlush)

	b.Push(removed("a"))
	assert.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 2*time.Millisecond)

	b.Push(removed("b"))
	assert.Eventually(t, func() bool { return s.count() == 2 }, time.Second, 2*time.Millisecond)

	batches := s.get()
	assert.Equal(t, []graph.Mutation{removed("a")}, batches[0])
	assert.Equal(t, []graph.Mutation{removed("b")}, batches[1])
}

func TestBuffer_Discard(t *testing.T) {
	s := &sink{}
	b := New(20*time.Millisecond, s.onFlush)

	b.Push(removed("a"))
	b.Push(removed("b"))
	assert.Equal(t, 2, b.Discard())

	time.Sleep(50 * time.Millisecond)
	b.Flush()
	assert.Zero(t, s.count())
}

func TestBuffer_PushDuringDeliveryGoesToNextBatch(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var batches [][]graph.Mutation

	var b *Buffer
	b = New(time.Hour, func(batch []graph.Mutation) {
		mu.Lock()
		batches = append(batches, batch)
		first := len(batches) == 1
		mu.Unlock()
		if first {
			b.Push(removed("late"))
			<-release
		}
	})

	b.Push(removed("a"))
	done := make(chan struct{})
	go func() {
		b.Flush()
		close(done)
	}()

	assert.Eventually(t, func() bool { return b.Len() == 1 }, time.Second, 2*time.Millisecond)
	close(release)
	<-done
	b.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 2)
	assert.Equal(t, []graph.Mutation{removed("a")}, batches[0])
	assert.Equal(t, []graph.Mutation{removed("late")}, batches[1])
}

func TestBuffer_ConcurrentPushesDeliverEverythingOnce(t *testing.T) {
	s := &sink{}
	b := New(5*time.Millisecond, s.onFlush)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				b.Push(removed("x"))
			}
		}()
	}
	wg.Wait()
	b.Flush()

	total := 0
	for _, batch := range s.get() {
		total += len(batch)
	}
	assert.Equal(t, 1000, total)
}

func TestNew_DefaultWindow(t *testing.T) {
	b := New(0, nil)
	assert.Equal(t, DefaultWindow, b.window)
	b.Push(removed("a"))
	b.Flush() // nil onFlush is tolerated
	assert.Zero(t, b.Len())
}
