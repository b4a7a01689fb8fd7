package ws

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn stands in for a live websocket on the hub side of the conn
// interface. Shared by the hub and session tests.
type mockConn struct {
	mu      sync.Mutex
	frames  []map[string]any
	closed  bool
	sendErr error
}

func (m *mockConn) writeJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.frames = append(m.frames, v.(map[string]any))
	return nil
}

func (m *mockConn) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockConn) received() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.frames))
	copy(out, m.frames)
	return out
}

func TestHub_BroadcastReachesRoomOnly(t *testing.T) {
	h := NewHub()
	alice := &mockConn{}
	bob := &mockConn{}
	carol := &mockConn{}
	h.reg.register(presenceKey{"alice", "1"}, alice)
	h.reg.register(presenceKey{"bob", "1"}, bob)
	h.reg.register(presenceKey{"carol", "2"}, carol)

	msg := map[string]any{"type": "text", "message": "hi"}
	h.Broadcast("1", msg)

	require.Len(t, alice.received(), 1)
	assert.Equal(t, msg, alice.received()[0])
	require.Len(t, bob.received(), 1)
	assert.Empty(t, carol.received(), "other rooms must not hear the broadcast")
}

func TestHub_FailedSendPrunesPeer(t *testing.T) {
	h := NewHub()
	alive := &mockConn{}
	dead := &mockConn{sendErr: errors.New("broken pipe")}
	h.reg.register(presenceKey{"alice", "1"}, alive)
	h.reg.register(presenceKey{"bob", "1"}, dead)

	h.Broadcast("1", map[string]any{"type": "text"})

	assert.Equal(t, []string{"alice"}, h.reg.listUsers("1"), "dead peer must be unregistered")
	assert.True(t, dead.closed)
	assert.Len(t, alive.received(), 1)

	// Next broadcast only hits the survivor.
	h.Broadcast("1", map[string]any{"type": "text"})
	assert.Len(t, alive.received(), 2)
	assert.Empty(t, dead.received())
}

func TestHub_PerRecipientOrder(t *testing.T) {
	h := NewHub()
	c := &mockConn{}
	h.reg.register(presenceKey{"alice", "1"}, c)

	for i := 0; i < 20; i++ {
		h.Broadcast("1", map[string]any{"type": "text", "seq": i})
	}

	frames := c.received()
	require.Len(t, frames, 20)
	for i, f := range frames {
		assert.Equal(t, i, f["seq"], "frames must arrive in broadcast order")
	}
}

func TestHub_BroadcastDuringChurnInOtherRoom(t *testing.T) {
	h := NewHub()
	member := &mockConn{}
	h.reg.register(presenceKey{"alice", "1"}, member)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c := &mockConn{}
			h.reg.register(presenceKey{"bob", "2"}, c)
			h.reg.unregister(presenceKey{"bob", "2"}, c)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			h.Broadcast("1", map[string]any{"type": "text", "seq": i})
		}
	}()
	wg.Wait()

	assert.Len(t, member.received(), 500)
	assert.Empty(t, h.reg.listUsers("2"))
}

func TestHub_BroadcastUserList(t *testing.T) {
	h := NewHub()
	alice := &mockConn{}
	bob := &mockConn{}
	h.reg.register(presenceKey{"alice", "1"}, alice)
	h.reg.register(presenceKey{"bob", "1"}, bob)

	h.BroadcastUserList("1")

	require.Len(t, alice.received(), 1)
	frame := alice.received()[0]
	assert.Equal(t, frameUserList, frame["type"])
	assert.Equal(t, []string{"alice", "bob"}, frame["users"])
}
