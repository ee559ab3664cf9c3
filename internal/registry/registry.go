// Package registry tracks which users currently hold a live push channel.
// It is a volatile cache of reachability, rebuilt from scratch on restart,
// and must never be treated as authoritative for business state.
package registry

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Conn is the transport handle held per user. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Presence mirrors connect/disconnect into an external liveness store.
// Both calls are best-effort.
type Presence interface {
	MarkOnline(userID uuid.UUID)
	MarkOffline(userID uuid.UUID)
}

type client struct {
	conn Conn
	mu   sync.Mutex // serializes writes; websocket conns are not write-safe
}

func (c *client) write(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Registry is the process-wide map of user -> live transport handle.
// Constructed once and injected wherever push delivery is needed.
type Registry struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]*client
	presence Presence
}

// New builds an empty registry. presence may be nil.
func New(presence Presence) *Registry {
	return &Registry{
		clients:  make(map[uuid.UUID]*client),
		presence: presence,
	}
}

// Connect registers a live handle for the user, replacing and closing any
// prior handle. At most one entry per user.
func (r *Registry) Connect(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	prev := r.clients[userID]
	r.clients[userID] = &client{conn: conn}
	total := len(r.clients)
	r.mu.Unlock()

	if prev != nil {
		_ = prev.conn.Close()
	}
	if r.presence != nil {
		r.presence.MarkOnline(userID)
	}
	log.Printf("user %s connected (%d online)", userID, total)
}

// Disconnect evicts the user's entry, but only if conn is still the current
// handle; a stale goroutine tearing down a replaced connection must not evict
// its successor. A nil conn evicts unconditionally.
func (r *Registry) Disconnect(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	current, ok := r.clients[userID]
	if ok && (conn == nil || current.conn == conn) {
		delete(r.clients, userID)
	} else {
		ok = false
	}
	total := len(r.clients)
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.presence != nil {
		r.presence.MarkOffline(userID)
	}
	log.Printf("user %s disconnected (%d online)", userID, total)
}

// IsConnected reports whether the user holds a live handle right now.
func (r *Registry) IsConnected(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// SendTo delivers one message to one user. Returns false when the user is not
// connected or the write fails; a failed handle is evicted immediately.
func (r *Registry) SendTo(userID uuid.UUID, msg any) bool {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := c.write(msg); err != nil {
		log.Printf("send to %s failed, evicting: %v", userID, err)
		r.Disconnect(userID, c.conn)
		_ = c.conn.Close()
		return false
	}
	return true
}

// Broadcast sends msg to every connected user except exclude (uuid.Nil means
// no exclusion). Returns the delivered count.
func (r *Registry) Broadcast(msg any, exclude uuid.UUID) int {
	r.mu.RLock()
	targets := make(map[uuid.UUID]*client, len(r.clients))
	for id, c := range r.clients {
		if id != exclude {
			targets[id] = c
		}
	}
	r.mu.RUnlock()

	sent := 0
	for id, c := range targets {
		if err := c.write(msg); err != nil {
			r.Disconnect(id, c.conn)
			_ = c.conn.Close()
			continue
		}
		sent++
	}
	return sent
}

// SendToSet delivers msg to a specific set of users, returning how many got it.
func (r *Registry) SendToSet(userIDs []uuid.UUID, msg any) int {
	sent := 0
	for _, id := range userIDs {
		if r.SendTo(id, msg) {
			sent++
		}
	}
	return sent
}

// ConnectedCount returns the number of live handles.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
