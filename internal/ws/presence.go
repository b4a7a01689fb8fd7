package ws

import (
	"sort"
	"sync"
)

// presenceKey identifies one live (user, room) pairing.
type presenceKey struct {
	Username string
	RoomID   string
}

// registry is the authoritative map of who is connected where. A key exists
// iff its connection is open; all access goes through the single mutex so a
// broadcast snapshot can never observe a half-removed entry. The lock is
// never held across connection I/O.
type registry struct {
	mu    sync.Mutex
	conns map[presenceKey]conn
}

func newRegistry() *registry {
	return &registry{conns: make(map[presenceKey]conn)}
}

// register inserts the connection, overwriting any stale entry under the same
// key. Last connect wins; the displaced connection is not closed here and
// gets pruned on its next failed send.
func (r *registry) register(key presenceKey, c conn) {
	r.mu.Lock()
	r.conns[key] = c
	r.mu.Unlock()
}

// unregister removes only if the key still maps to this connection, so a
// reconnect that already overwrote the entry is not torn down by the old
// session's cleanup.
func (r *registry) unregister(key presenceKey, c conn) {
	r.mu.Lock()
	if cur, ok := r.conns[key]; ok && cur == c {
		delete(r.conns, key)
	}
	r.mu.Unlock()
}

func (r *registry) listUsers(roomID string) []string {
	r.mu.Lock()
	users := make([]string, 0, len(r.conns))
	for k := range r.conns {
		if k.RoomID == roomID {
			users = append(users, k.Username)
		}
	}
	r.mu.Unlock()

	sort.Strings(users)
	return users
}

func (r *registry) connectionFor(key presenceKey) (conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[key]
	return c, ok
}

// snapshot copies the room's current membership so callers can do I/O
// without the lock.
func (r *registry) snapshot(roomID string) map[presenceKey]conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[presenceKey]conn)
	for k, c := range r.conns {
		if k.RoomID == roomID {
			out[k] = c
		}
	}
	return out
}
