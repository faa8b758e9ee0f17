// Package session wires the stream transport, resolver, buffer and graph
// store into the consumer-facing engine. One session runs at most one
// stream at a time.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teranos/sprout/activity"
	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/backend"
	"github.com/teranos/sprout/batch"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/logger"
	"github.com/teranos/sprout/resolve"
	"github.com/teranos/sprout/stream"
	"go.uber.org/zap"
)

// StatusNotReady is the fallback status reported while the backend is still preparing
const StatusNotReady = "not_ready"

// Transport opens one pipeline stream; *stream.Transport is the production implementation
type Transport interface {
	Open(ctx context.Context, url string, body any, cb stream.Callbacks) error
}

// BatchResult is handed to OnBatch observers after each batch is applied.
// A result with no mutations reports nodes that finished removal.
type BatchResult struct {
	Mutations []graph.Mutation
	Snapshot  graph.Snapshot
	Locked    graph.LockSet
}

// Session owns one graph store and the stream that feeds it.
//
// Observer callbacks run on the goroutine that delivered the batch and must
// not call StartStream or CancelStream.
type Session struct {
	transport Transport
	resolver  *resolve.Resolver
	buffer    *batch.Buffer
	store     *graph.Store
	activity  *activity.Log
	backend   *backend.Client
	window    time.Duration
	threshold float64
	log       *zap.SugaredLogger

	// ctl serializes StartStream and CancelStream
	ctl sync.Mutex

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	streaming bool
	result    error // outcome of the last stream, for Wait
	err       error // last reported failure, never cancellation
	notice    string

	onBatch    []func(BatchResult)
	onMutation []func(graph.Mutation)
	onError    []func(error)
}

// Option configures a Session
type Option func(*Session)

// WithTransport overrides the stream transport
func WithTransport(t Transport) Option {
	return func(s *Session) { s.transport = t }
}

// WithStore overrides the graph store
func WithStore(st *graph.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithBackend enables Refresh and the edge loaders
func WithBackend(c *backend.Client) Option {
	return func(s *Session) { s.backend = c }
}

// WithActivityLog overrides the activity log
func WithActivityLog(l *activity.Log) Option {
	return func(s *Session) { s.activity = l }
}

// WithBufferWindow sets the batching window
func WithBufferWindow(d time.Duration) Option {
	return func(s *Session) { s.window = d }
}

// WithMasteryThreshold sets the score at which a progress record counts as complete
func WithMasteryThreshold(v float64) Option {
	return func(s *Session) { s.threshold = v }
}

// WithLogger overrides the component logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) { s.log = l }
}

// New creates an idle session
func New(opts ...Option) *Session {
	s := &Session{
		resolver:  resolve.New(),
		window:    batch.DefaultWindow,
		threshold: am.DefaultMasteryThreshold,
		log:       logger.ComponentLogger("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = stream.New()
	}
	if s.store == nil {
		s.store = graph.NewStore()
	}
	if s.activity == nil {
		s.activity = activity.NewLog()
	}
	s.buffer = batch.New(s.window, s.apply)
	s.store.OnChange(s.handleChange)
	return s
}

// NewFromConfig creates a session with every component built from cfg
func NewFromConfig(cfg *am.Config, opts ...Option) *Session {
	base := []Option{
		WithTransport(stream.NewFromConfig(cfg.Stream)),
		WithStore(graph.NewStore(graph.WithRemovalGrace(time.Duration(cfg.Graph.RemovalGraceMS) * time.Millisecond))),
		WithBackend(backend.NewClientFromConfig(cfg)),
		WithBufferWindow(time.Duration(cfg.Buffer.WindowMS) * time.Millisecond),
		WithMasteryThreshold(cfg.Graph.MasteryThreshold),
	}
	return New(append(base, opts...)...)
}

// Store returns the graph store fed by this session
func (s *Session) Store() *graph.Store { return s.store }

// Activity returns the activity log for the current stream
func (s *Session) Activity() *activity.Log { return s.activity }

// OnBatch registers fn to receive every applied batch
func (s *Session) OnBatch(fn func(BatchResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBatch = append(s.onBatch, fn)
}

// OnMutation registers fn to receive each mutation after its batch is applied
func (s *Session) OnMutation(fn func(graph.Mutation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutation = append(s.onMutation, fn)
}

// OnError registers fn to receive stream failures and malformed frames.
// Cancellation is never reported.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// OnNodeChange registers fn to receive node lifecycle transitions
func (s *Session) OnNodeChange(fn func(graph.Change)) {
	s.store.OnChange(fn)
}

// SeedKnownNodes primes the resolver with node ids that already exist.
// Call it before StartStream.
func (s *Session) SeedKnownNodes(ids []string) {
	s.resolver.SeedKnownNodes(ids)
}

// StartStream cancels any active stream, then POSTs body to url and feeds the
// response into the store in the background. The stream also ends when ctx is done.
func (s *Session) StartStream(ctx context.Context, url string, body any) error {
	if url == "" {
		return errors.NewInvalidRequestError("stream url is required")
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.stop()
	s.activity.Clear()

	streamID := uuid.New().String()[:8]
	streamCtx, cancel := context.WithCancel(logger.WithSessionID(ctx, streamID))
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.streaming = true
	s.result = nil
	s.err = nil
	s.notice = ""
	s.mu.Unlock()

	s.log.Infow("Starting stream", logger.FieldURL, url, logger.FieldSessionID, streamID)
	go s.run(streamCtx, url, body, done)
	return nil
}

// CancelStream stops the active stream, if any, and discards mutations that
// have not been delivered yet. It returns once the stream has shut down.
func (s *Session) CancelStream() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stop()
}

// stop must be called with ctl held
func (s *Session) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if dropped := s.buffer.Discard(); dropped > 0 {
		s.log.Debugw("Discarded queued mutations at cancel", logger.FieldCount, dropped)
	}
	<-done
}

// IsStreaming reports whether a stream is active
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Err returns the last failure reported by the current stream
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Notice returns the informational status of a non-streaming response, if any
func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Wait blocks until the current stream ends and returns its outcome.
// A cancelled stream returns an error matching errors.ErrStreamCancelled.
func (s *Session) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) run(ctx context.Context, url string, body any, done chan struct{}) {
	defer close(done)

	err := s.transport.Open(ctx, url, body, stream.Callbacks{
		OnEvent: func(e stream.Event) {
			if ctx.Err() != nil {
				return
			}
			s.handleEvent(e)
		},
		OnError: s.report,
	})

	if errors.IsCancelled(err) {
		dropped := s.buffer.Discard()
		s.log.Infow("Stream cancelled", logger.FieldURL, url, "discarded", dropped)
	} else {
		s.buffer.Flush()
		s.log.Infow("Stream ended", logger.FieldURL, url, logger.FieldPending, s.resolver.Pending())
	}

	s.mu.Lock()
	s.streaming = false
	s.result = err
	s.cancel = nil
	s.mu.Unlock()
}

func (s *Session) handleEvent(e stream.Event) {
	m, err := resolve.Decode(e)
	if err != nil {
		s.report(err)
		return
	}
	if m == nil {
		s.log.Debugw("Ignoring event", logger.FieldEvent, e.Type)
		return
	}

	switch m := m.(type) {
	case graph.ActivityEvent:
		if _, err := s.activity.Record(m); err != nil {
			s.log.Debugw("Dropping activity event", logger.FieldEvent, m.Event, logger.FieldError, err)
		}
		return
	case graph.FallbackResponse:
		s.noteFallback(m)
	}

	for _, out := range s.resolver.Resolve(m) {
		s.buffer.Push(out)
	}
}

func (s *Session) noteFallback(m graph.FallbackResponse) {
	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if json.Unmarshal(m.Payload, &body) != nil || body.Status != StatusNotReady {
		return
	}

	notice := body.Message
	if notice == "" {
		notice = "backend is not ready yet"
	}
	s.mu.Lock()
	s.notice = notice
	s.mu.Unlock()
	s.log.Infow("Backend not ready", logger.FieldStatus, body.Status)
}

func (s *Session) report(err error) {
	s.mu.Lock()
	s.err = err
	handlers := append([]func(error){}, s.onError...)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(err)
	}
}

// apply is the buffer's flush callback
func (s *Session) apply(mutations []graph.Mutation) {
	s.store.Apply(mutations)
	s.publish(mutations)
}

// handleChange republishes the graph when a removed node is finally dropped
func (s *Session) handleChange(c graph.Change) {
	if c.To != graph.StateGone {
		return
	}
	s.log.Debugw("Node gone, recomputing locks", logger.FieldNodeID, c.NodeID)
	s.publish(nil)
}

// publish computes the lock set of the current store and notifies observers
func (s *Session) publish(mutations []graph.Mutation) {
	snap := s.store.Snapshot()
	result := BatchResult{Mutations: mutations, Snapshot: snap, Locked: snap.Locked()}

	s.mu.Lock()
	mutationHandlers := append([]func(graph.Mutation){}, s.onMutation...)
	batchHandlers := append([]func(BatchResult){}, s.onBatch...)
	s.mu.Unlock()

	s.log.Debugw("Batch applied",
		logger.FieldBatchSize, len(mutations),
		logger.FieldLocked, len(result.Locked))

	for _, fn := range mutationHandlers {
		for _, m := range mutations {
			fn(m)
		}
	}
	for _, fn := range batchHandlers {
		fn(result)
	}
}

// BranchView builds the concept view of one branch from the current store contents
func (s *Session) BranchView(branchID string) graph.View {
	return s.store.Snapshot().BranchView(branchID)
}

// ConceptView builds the subconcept view of one concept from the current store contents
func (s *Session) ConceptView(conceptID string) graph.View {
	return s.store.Snapshot().ConceptView(conceptID)
}

// OpenNode returns the node if it can be opened from view.
// Locked nodes are refused with an error matching errors.ErrNodeLocked.
func (s *Session) OpenNode(view graph.View, nodeID string) (graph.Node, error) {
	if err := view.Open(nodeID); err != nil {
		return graph.Node{}, err
	}
	node, ok := s.store.Node(nodeID)
	if !ok {
		return graph.Node{}, errors.NewNotFoundError("node %s", nodeID)
	}
	return node, nil
}
