// Package server is the renderer hub: it pushes applied batches, activity and
// stream errors of one session to WebSocket clients and exposes the session's
// controls over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teranos/sprout/activity"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/logger"
	"github.com/teranos/sprout/session"
	"go.uber.org/zap"
)

// MaxClients bounds concurrent WebSocket connections
const MaxClients = 64

// Server fans session output out to connected renderers
type Server struct {
	session        *session.Session
	log            *zap.SugaredLogger
	allowedOrigins []string
	upgrader       websocket.Upgrader

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu        sync.RWMutex
	lastHash  string
	lastBatch []byte // replayed to clients that connect mid-stream

	drops atomic.Int64

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithAllowedOrigins sets the Origin prefixes accepted for WebSocket upgrades
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithLogger overrides the component logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server around sess and starts its hub.
// Call Close to stop the hub and disconnect clients.
func New(sess *session.Session, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		session:        sess,
		log:            logger.ComponentLogger("server"),
		allowedOrigins: []string{"http://localhost", "https://localhost"},
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte, 64),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}

	sess.OnBatch(s.publishBatch)
	sess.OnError(s.publishError)
	sess.Activity().Subscribe(s.publishActivity)

	s.wg.Add(1)
	go s.run()
	return s
}

// Handler returns the HTTP routes of the hub
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/activity", s.handleActivity)
	mux.HandleFunc("GET /api/branches/{id}/view", s.handleBranchView)
	mux.HandleFunc("GET /api/concepts/{id}/view", s.handleConceptView)
	mux.HandleFunc("POST /api/branches/{branch}/nodes/{id}/open", s.handleOpenNode)
	mux.HandleFunc("POST /api/stream", s.handleStartStream)
	mux.HandleFunc("DELETE /api/stream", s.handleCancelStream)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	return mux
}

// ListenAndServe serves Handler on addr until Close is called
func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Infow("Renderer hub listening", logger.FieldURL, "http://"+addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "failed to serve on %s", addr)
	}
	return nil
}

// Close stops the HTTP listener, disconnects every client and waits for the hub to exit
func (s *Server) Close(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.cancel()
	s.wg.Wait()
	return err
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// run owns the client set; every send to a client channel happens here
func (s *Server) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			for c := range s.clients {
				delete(s.clients, c)
				c.close()
			}
			s.mu.Unlock()
			s.log.Debugw("Hub stopped")
			return

		case c := <-s.register:
			s.handleRegister(c)

		case c := <-s.unregister:
			s.mu.Lock()
			if s.clients[c] {
				delete(s.clients, c)
				c.close()
			}
			total := len(s.clients)
			s.mu.Unlock()
			s.log.Infow("Client disconnected", logger.FieldClientID, c.id, logger.FieldCount, total)

		case msg := <-s.broadcast:
			s.fanOut(msg)
		}
	}
}

func (s *Server) handleRegister(c *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.log.Warnw("Max clients reached, rejecting connection", logger.FieldClientID, c.id, "max_clients", MaxClients)
		c.close()
		return
	}
	s.clients[c] = true
	total := len(s.clients)
	last := s.lastBatch
	s.mu.Unlock()

	if last != nil {
		c.send <- last
	}
	s.log.Infow("Client connected", logger.FieldClientID, c.id, logger.FieldCount, total)
}

// fanOut drops clients whose send buffer is full rather than blocking the hub
func (s *Server) fanOut(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.drops.Add(1)
			delete(s.clients, c)
			c.close()
			s.log.Warnw("Client send buffer full, removing client",
				logger.FieldClientID, c.id,
				"total_drops", s.drops.Load())
		}
	}
}

// enqueue hands msg to the hub without blocking the session
func (s *Server) enqueue(msg []byte) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.drops.Add(1)
		s.log.Warnw("Broadcast queue full, dropping message")
	}
}

func (s *Server) publishBatch(r session.BatchResult) {
	hash := r.Snapshot.Hash()

	s.mu.Lock()
	if hash == s.lastHash {
		s.mu.Unlock()
		return
	}
	s.lastHash = hash
	s.mu.Unlock()

	msg, err := encode(newBatchMessage(r, hash))
	if err != nil {
		s.log.Errorw("Failed to encode batch", logger.FieldError, err)
		return
	}

	s.mu.Lock()
	s.lastBatch = msg
	s.mu.Unlock()
	s.enqueue(msg)
}

func (s *Server) publishActivity(e activity.Entry) {
	if msg, err := encode(Message{Type: MessageActivity, Entry: &e}); err == nil {
		s.enqueue(msg)
	}
}

func (s *Server) publishError(err error) {
	m := Message{Type: MessageError, Error: err.Error()}
	if hint := errors.FlattenHints(err); hint != "" {
		m.Hint = hint
	}
	if msg, encErr := encode(m); encErr == nil {
		s.enqueue(msg)
	}
}

// checkOrigin accepts requests without an Origin and origins matching a configured prefix
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	s.log.Warnw("Rejected WebSocket origin", "origin", origin)
	return false
}
