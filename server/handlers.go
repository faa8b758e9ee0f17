package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/logger"
)

// snapshotResponse is the body of GET /api/snapshot
type snapshotResponse struct {
	Hash     string         `json:"hash"`
	Snapshot graph.Snapshot `json:"snapshot"`
	Locked   []string       `json:"locked"`
}

// viewResponse is the body of the view endpoints
type viewResponse struct {
	Nodes  []graph.Node `json:"nodes"`
	Edges  []graph.Edge `json:"edges"`
	Locked []string     `json:"locked"`
	Order  []string     `json:"order"`
}

func newViewResponse(v graph.View) viewResponse {
	return viewResponse{Nodes: v.Nodes, Edges: v.Edges, Locked: v.Locked.IDs(), Order: v.Ordered()}
}

// streamRequest is the body of POST /api/stream
type streamRequest struct {
	URL  string          `json:"url"`
	Body json.RawMessage `json:"body,omitempty"`
}

// refreshRequest is the body of POST /api/refresh
type refreshRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.log.Debugw("WebSocket upgrade failed", "error", err)
		return
	}

	id := uuid.New().String()[:8]
	c := &Client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		id:     id,
		log:    logger.ChildLogger(s.log, logger.FieldClientID, id),
	}

	s.wg.Add(2)
	select {
	case s.register <- c:
	case <-s.ctx.Done():
		s.wg.Done()
		s.wg.Done()
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"streaming": s.session.IsStreaming(),
		"clients":   s.ClientCount(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Store().Snapshot()
	writeJSON(w, http.StatusOK, snapshotResponse{
		Hash:     snap.Hash(),
		Snapshot: snap,
		Locked:   snap.Locked().IDs(),
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Activity().Entries())
}

func (s *Server) handleBranchView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newViewResponse(s.session.BranchView(r.PathValue("id"))))
}

func (s *Server) handleConceptView(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if r.URL.Query().Get("reload") == "true" {
		if err := s.session.LoadConceptEdges(r.Context(), id); err != nil {
			writeFailure(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newViewResponse(s.session.ConceptView(id)))
}

// handleOpenNode refuses nodes that are locked within their branch view
func (s *Server) handleOpenNode(w http.ResponseWriter, r *http.Request) {
	view := s.session.BranchView(r.PathValue("branch"))
	node, err := s.session.OpenNode(view, r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	var body any
	if len(req.Body) > 0 {
		body = req.Body
	}
	// The stream outlives this request, so it is bound to the hub instead
	if err := s.session.StartStream(s.ctx, req.URL, body); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"streaming": true})
}

func (s *Server) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	s.session.CancelStream()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if err := s.session.Refresh(logger.WithComponent(r.Context(), "server"), req.UserID); err != nil {
		writeFailure(w, errors.Wrap(err, "refresh failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": s.session.Store().Snapshot().Hash()})
}
