// Package hub owns the in-process presence registry. State here is ephemeral
// by design: it is rebuilt from zero on restart and never persisted.
package hub

import "sync"

// Session is one open push-channel connection. Out is a bounded outbound
// queue; a full queue means backpressure and the frame is dropped by the
// caller, never blocked on.
type Session struct {
	UID int64
	SID int64
	Out chan []byte
}

type Hub struct {
	mu    sync.RWMutex
	users map[int64]map[int64]*Session
	conns int
}

func New() *Hub {
	return &Hub{users: make(map[int64]map[int64]*Session)}
}

// Add registers the session and reports whether it is the user's first open
// session (the OFFLINE→ONLINE transition).
func (h *Hub) Add(s *Session) (first bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[s.UID]
	if !ok {
		set = make(map[int64]*Session)
		h.users[s.UID] = set
	}
	set[s.SID] = s
	h.conns++
	return !ok
}

// Remove deregisters the session and reports whether the user went offline
// (last session closed).
func (h *Hub) Remove(uid, sid int64) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[uid]
	if !ok {
		return false
	}
	if _, ok := set[sid]; !ok {
		return false
	}
	delete(set, sid)
	h.conns--
	if len(set) == 0 {
		delete(h.users, uid)
		return true
	}
	return false
}

// Sessions snapshots the user's open sessions; empty when offline.
func (h *Hub) Sessions(uid int64) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.users[uid]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// All snapshots every open session across all users.
func (h *Hub) All() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, h.conns)
	for _, set := range h.users {
		for _, s := range set {
			out = append(out, s)
		}
	}
	return out
}

// OnlineUsers snapshots the ids of users with at least one open session.
func (h *Hub) OnlineUsers() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]int64, 0, len(h.users))
	for uid := range h.users {
		out = append(out, uid)
	}
	return out
}

func (h *Hub) Online(uid int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.users[uid]
	return ok
}

// Len is the total open session count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns
}

// Users is the count of distinct online users.
func (h *Hub) Users() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}
