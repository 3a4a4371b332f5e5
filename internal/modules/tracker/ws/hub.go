package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"tracker-server/internal/metrics"
	"tracker-server/internal/modules/tracker/types"
)

// Hub fans stored fixes out to every connected viewer session. Broadcast
// never blocks the ingestion path: a session that cannot keep up has the
// frame dropped, not queued.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	closed   bool
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[*Session]struct{}),
	}
}

// locationFrame is the live-stream envelope pushed to viewers.
type locationFrame struct {
	Type string `json:"type"`
	types.LocationEvent
}

// Broadcast pushes a fix to all sessions. Called from the ingestion
// pipeline after the fix has been persisted.
func (h *Hub) Broadcast(fix types.Fix) {
	frame, err := json.Marshal(locationFrame{
		Type:          "newLocation",
		LocationEvent: fix.LocationEvent(),
	})
	if err != nil {
		h.logger.Error("failed to encode location frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	metrics.Broadcasts.Inc()
	for s := range h.sessions {
		select {
		case <-s.done:
			// Session is shutting down; not a slow-viewer drop.
		case s.send <- frame:
		default:
			metrics.BroadcastDropped.Inc()
			h.logger.Warn("viewer session too slow, frame dropped", "remote", s.remote)
		}
	}
}

func (h *Hub) register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	metrics.ViewerSessions.Set(float64(len(h.sessions)))
	return true
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	metrics.ViewerSessions.Set(float64(len(h.sessions)))
}

// Close disconnects every session and rejects new registrations. Part of
// graceful shutdown; safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*Session]struct{})
	metrics.ViewerSessions.Set(0)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// SessionCount reports the number of connected viewers.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
