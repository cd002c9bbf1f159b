package gateway

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub is the broadcast group of connected sessions. Sessions register on
// accept and deregister on close; Broadcast fans a frame out to every member.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: map[*Session]struct{}{}}
}

func (h *Hub) Add(s *Session) {
	if h == nil || s == nil {
		return
	}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Remove(s *Session) {
	if h == nil || s == nil {
		return
	}
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

func (h *Hub) Count() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Broadcast sends a frame to every connected session. Sessions whose write
// fails are dropped.
func (h *Hub) Broadcast(frame OutboundFrame) {
	if h == nil {
		return
	}
	h.mu.Lock()
	members := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		members = append(members, s)
	}
	h.mu.Unlock()

	for _, s := range members {
		if err := s.send(frame); err != nil {
			log.Warn().Err(err).Str("session_id", s.id).Msg("broadcast failed, dropping session")
			s.Close()
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (h *Hub) CloseAll() {
	if h == nil {
		return
	}
	h.mu.Lock()
	members := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		members = append(members, s)
	}
	h.mu.Unlock()

	for _, s := range members {
		s.Close()
	}
}
