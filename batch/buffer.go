// Package batch coalesces graph mutations into time-windowed batches.
package batch

import (
	"sync"
	"time"

	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/logger"
	"go.uber.org/zap"
)

// DefaultWindow is the batching window used when none is configured
const DefaultWindow = am.DefaultBufferWindowMS * time.Millisecond

// Buffer queues mutations and delivers them in batches.
//
// The first Push into an empty buffer opens a window; when it closes the whole
// queue is swapped out and handed to onFlush in one call. Batches are
// delivered one at a time, in the order their windows closed, and pushes made
// while a batch is being delivered land in the next batch.
type Buffer struct {
	mu     sync.Mutex
	queue  []graph.Mutation
	timer  *time.Timer
	gen    uint64 // invalidates timers that were stopped too late
	window time.Duration

	// deliverMu serializes swap-and-deliver so batches cannot overtake each other
	deliverMu sync.Mutex
	onFlush   func([]graph.Mutation)

	log *zap.SugaredLogger
}

// New creates a Buffer. onFlush must not call Flush.
func New(window time.Duration, onFlush func([]graph.Mutation)) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Buffer{
		window:  window,
		onFlush: onFlush,
		log:     logger.ComponentLogger("batch"),
	}
}

// Push appends m and opens a window if none is running
func (b *Buffer) Push(m graph.Mutation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, m)
	if b.timer == nil {
		b.gen++
		gen := b.gen
		b.timer = time.AfterFunc(b.window, func() { b.expire(gen) })
	}
}

// Flush cancels the running window and delivers whatever is queued.
// It does nothing when the queue is empty.
func (b *Buffer) Flush() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.stopTimer()
	batch := b.swap()
	b.mu.Unlock()

	b.deliver(batch, "flush")
}

// Discard drops everything queued without delivering it and returns the count
func (b *Buffer) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimer()
	dropped := len(b.swap())
	if dropped > 0 {
		b.log.Debugw("Discarded queued mutations", logger.FieldCount, dropped)
	}
	return dropped
}

// Len returns the number of queued mutations
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Buffer) expire(gen uint64) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if gen != b.gen || b.timer == nil {
		// superseded by Flush or Discard
		b.mu.Unlock()
		return
	}
	b.timer = nil
	batch := b.swap()
	b.mu.Unlock()

	b.deliver(batch, "window")
}

func (b *Buffer) deliver(batch []graph.Mutation, reason string) {
	if len(batch) == 0 {
		return
	}
	b.log.Debugw("Delivering batch", logger.FieldBatchSize, len(batch), logger.FieldWindowMS, b.window.Milliseconds(), "reason", reason)
	if b.onFlush != nil {
		b.onFlush(batch)
	}
}

// stopTimer must be called with mu held
func (b *Buffer) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

// swap must be called with mu held
func (b *Buffer) swap() []graph.Mutation {
	batch := b.queue
	b.queue = nil
	return batch
}
