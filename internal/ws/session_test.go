package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chathub/internal/store/history"
)

type fakeHistory struct {
	mu        sync.Mutex
	logs      map[string][]history.Record
	appendErr error
	listErr   error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{logs: make(map[string][]history.Record)}
}

func (f *fakeHistory) Append(_ context.Context, roomID string, rec history.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.logs[roomID] = append(f.logs[roomID], rec)
	return nil
}

func (f *fakeHistory) ListOrdered(_ context.Context, roomID string) ([]history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]history.Record(nil), f.logs[roomID]...), nil
}

func (f *fakeHistory) records(roomID string) []history.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]history.Record(nil), f.logs[roomID]...)
}

type fakeRooms struct {
	mu    sync.Mutex
	names map[string]string
	err   error
}

func newFakeRooms() *fakeRooms { return &fakeRooms{names: make(map[string]string)} }

func (f *fakeRooms) SetRoomName(_ context.Context, roomID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.names[roomID] = name
	return nil
}

type sessionFixture struct {
	hub      *Hub
	frag     *reassembler
	messages *fakeHistory
	rooms    *fakeRooms
}

func newSessionFixture() *sessionFixture {
	return &sessionFixture{
		hub:      NewHub(),
		frag:     newReassembler(),
		messages: newFakeHistory(),
		rooms:    newFakeRooms(),
	}
}

func (fx *sessionFixture) session(c conn) *session {
	return newSession(c, fx.hub, fx.frag, fx.messages, fx.rooms)
}

func (fx *sessionFixture) connect(t *testing.T, s *session, username, roomID string) {
	t.Helper()
	send(t, s, map[string]any{"type": "connect", "username": username, "roomId": roomID})
	require.Contains(t, fx.hub.reg.listUsers(roomID), username)
}

func send(t *testing.T, s *session, frame map[string]any) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	s.handleFrame(context.Background(), data)
}

func TestSession_ConnectRegistersAnnouncesAndReplays(t *testing.T) {
	fx := newSessionFixture()
	fx.messages.logs["1"] = []history.Record{
		{Sender: "old", Kind: "text", Payload: "first", Timestamp: 1.0},
		{Sender: "old", Kind: "image", Payload: "pixels", Timestamp: 2.0},
	}
	resident := &mockConn{}
	residentSess := fx.session(resident)
	fx.connect(t, residentSess, "bob", "1")

	joiner := &mockConn{}
	fx.connect(t, fx.session(joiner), "alice", "1")

	// The room hears the new occupant set.
	frames := resident.received()
	last := frames[len(frames)-1]
	assert.Equal(t, frameUserList, last["type"])
	assert.Equal(t, []string{"alice", "bob"}, last["users"])

	// The joiner gets presence, then the full log in ascending order.
	got := joiner.received()
	require.Len(t, got, 3)
	assert.Equal(t, frameUserList, got[0]["type"])
	assert.Equal(t, frameHistory, got[1]["type"])
	assert.Equal(t, "first", got[1]["message"])
	assert.Equal(t, 1.0, got[1]["timestamp"])
	assert.Equal(t, frameHistory, got[2]["type"])
	assert.Equal(t, "pixels", got[2]["image"])
	assert.Equal(t, 2.0, got[2]["timestamp"])
}

func TestSession_TextMessagePersistedAndBroadcast(t *testing.T) {
	fx := newSessionFixture()
	alice := &mockConn{}
	s := fx.session(alice)
	fx.connect(t, s, "alice", "1")

	outsider := &mockConn{}
	fx.connect(t, fx.session(outsider), "carol", "2")

	send(t, s, map[string]any{"type": "text", "message": "hi"})

	recs := fx.messages.records("1")
	require.Len(t, recs, 1)
	assert.Equal(t, "alice", recs[0].Sender)
	assert.Equal(t, "text", recs[0].Kind)
	assert.Equal(t, "hi", recs[0].Payload)
	assert.Greater(t, recs[0].Timestamp, 0.0)

	frames := alice.received()
	last := frames[len(frames)-1]
	assert.Equal(t, "text", last["type"])
	assert.Equal(t, "hi", last["message"])
	assert.Equal(t, "alice", last["sender"])

	for _, f := range outsider.received() {
		assert.NotEqual(t, "text", f["type"], "room 2 must not hear room 1 traffic")
	}
}

func TestSession_TimestampsIncreasePerSender(t *testing.T) {
	fx := newSessionFixture()
	c := &mockConn{}
	s := fx.session(c)
	// Frozen clock: only the monotonic guard can separate the stamps.
	s.now = func() float64 { return 100.0 }
	fx.connect(t, s, "alice", "1")

	for i := 0; i < 5; i++ {
		send(t, s, map[string]any{"type": "text", "message": "m"})
	}

	recs := fx.messages.records("1")
	require.Len(t, recs, 5)
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Timestamp, recs[i-1].Timestamp)
	}
}

func TestSession_FramesBeforeHandshakeIgnored(t *testing.T) {
	fx := newSessionFixture()
	c := &mockConn{}
	s := fx.session(c)

	send(t, s, map[string]any{"type": "text", "message": "too early"})
	send(t, s, map[string]any{"type": "get_user_list"})

	assert.Empty(t, fx.messages.records("1"))
	assert.Empty(t, c.received(), "nothing is persisted or answered before connect")
}

func TestSession_GetUserListIsPointToPoint(t *testing.T) {
	fx := newSessionFixture()
	alice := &mockConn{}
	bob := &mockConn{}
	aliceSess := fx.session(alice)
	fx.connect(t, aliceSess, "alice", "1")
	fx.connect(t, fx.session(bob), "bob", "1")

	before := len(bob.received())
	send(t, aliceSess, map[string]any{"type": "get_user_list"})

	frames := alice.received()
	last := frames[len(frames)-1]
	assert.Equal(t, frameUserList, last["type"])
	assert.Equal(t, []string{"alice", "bob"}, last["users"])
	assert.Len(t, bob.received(), before, "user list reply must not be broadcast")
}

func TestSession_UpdateRoomName(t *testing.T) {
	fx := newSessionFixture()
	alice := &mockConn{}
	bob := &mockConn{}
	s := fx.session(alice)
	fx.connect(t, s, "alice", "1")
	fx.connect(t, fx.session(bob), "bob", "1")

	send(t, s, map[string]any{"type": "update_room_name", "newName": "den"})

	assert.Equal(t, "den", fx.rooms.names["1"])
	frames := bob.received()
	last := frames[len(frames)-1]
	assert.Equal(t, frameRoomNameUpdated, last["type"])
	assert.Equal(t, "1", last["roomId"])
	assert.Equal(t, "den", last["newName"])
}

func TestSession_RoomRenameBroadcastSurvivesStoreError(t *testing.T) {
	fx := newSessionFixture()
	fx.rooms.err = errors.New("db down")
	c := &mockConn{}
	s := fx.session(c)
	fx.connect(t, s, "alice", "1")

	send(t, s, map[string]any{"type": "update_room_name", "newName": "den"})

	frames := c.received()
	assert.Equal(t, frameRoomNameUpdated, frames[len(frames)-1]["type"])
}

func TestSession_ChunkedImageOutOfOrder(t *testing.T) {
	fx := newSessionFixture()
	c := &mockConn{}
	s := fx.session(c)
	fx.connect(t, s, "alice", "1")

	chunks := []string{"AAA", "BBB", "CCC"}
	for _, idx := range []int{2, 0} {
		send(t, s, map[string]any{
			"type": "image", "image": chunks[idx],
			"chunkIndex": idx, "chunkTotal": 3,
		})
		assert.Empty(t, fx.messages.records("1"), "no effect before the stream completes")
	}
	send(t, s, map[string]any{
		"type": "image", "image": chunks[1],
		"chunkIndex": 1, "chunkTotal": 3,
	})

	recs := fx.messages.records("1")
	require.Len(t, recs, 1)
	assert.Equal(t, "image", recs[0].Kind)
	assert.Equal(t, "AAABBBCCC", recs[0].Payload)

	var imageFrames int
	for _, f := range c.received() {
		if f["type"] == "image" {
			imageFrames++
			assert.Equal(t, "AAABBBCCC", f["image"])
		}
	}
	assert.Equal(t, 1, imageFrames, "exactly one broadcast per completed stream")
}

func TestSession_MalformedFragmentDropped(t *testing.T) {
	fx := newSessionFixture()
	c := &mockConn{}
	s := fx.session(c)
	fx.connect(t, s, "alice", "1")

	send(t, s, map[string]any{
		"type": "image", "image": "X",
		"chunkIndex": 7, "chunkTotal": 3,
	})

	assert.Empty(t, fx.messages.records("1"))

	// Session is still active: a plain message goes through.
	send(t, s, map[string]any{"type": "text", "message": "still here"})
	assert.Len(t, fx.messages.records("1"), 1)
}

func TestSession_FileFrame(t *testing.T) {
	fx := newSessionFixture()
	c := &mockConn{}
	s := fx.session(c)
	fx.connect(t, s, "alice", "1")

	send(t, s, map[string]any{"type": "file", "fileName": "cat.png"})

	recs := fx.messages.records("1")
	require.Len(t, recs, 1)
	assert.Equal(t, "file", recs[0].Kind)
	assert.Equal(t, "cat.png", recs[0].FileName)
	assert.Empty(t, recs[0].Payload)

	frames := c.received()
	last := frames[len(frames)-1]
	assert.Equal(t, "file", last["type"])
	assert.Equal(t, "cat.png", last["fileName"])
	assert.NotContains(t, last, "message")
}

func TestSession_MalformedJSONKeepsSessionActive(t *testing.T) {
	fx := newSessionFixture()
	c := &mockConn{}
	s := fx.session(c)
	fx.connect(t, s, "alice", "1")

	s.handleFrame(context.Background(), []byte("{not json"))
	assert.Equal(t, sessionActive, s.state)

	send(t, s, map[string]any{"type": "text", "message": "ok"})
	assert.Len(t, fx.messages.records("1"), 1)
}

func TestSession_PersistenceFailureStillBroadcasts(t *testing.T) {
	fx := newSessionFixture()
	fx.messages.appendErr = errors.New("db down")
	c := &mockConn{}
	s := fx.session(c)
	fx.connect(t, s, "alice", "1")

	send(t, s, map[string]any{"type": "text", "message": "hi"})

	frames := c.received()
	last := frames[len(frames)-1]
	assert.Equal(t, "text", last["type"], "best-effort delivery wins over durability")
}

func TestSession_TeardownAnnouncesDeparture(t *testing.T) {
	fx := newSessionFixture()
	alice := &mockConn{}
	bob := &mockConn{}
	aliceSess := fx.session(alice)
	fx.connect(t, aliceSess, "alice", "1")
	fx.connect(t, fx.session(bob), "bob", "1")

	aliceSess.teardown()

	assert.Equal(t, []string{"bob"}, fx.hub.reg.listUsers("1"))
	assert.True(t, alice.closed)
	frames := bob.received()
	last := frames[len(frames)-1]
	assert.Equal(t, frameUserList, last["type"])
	assert.Equal(t, []string{"bob"}, last["users"])

	// Terminal: further frames and teardowns are no-ops.
	send(t, aliceSess, map[string]any{"type": "text", "message": "ghost"})
	aliceSess.teardown()
	assert.Empty(t, fx.messages.records("1"))
}

func TestSession_TeardownBeforeHandshake(t *testing.T) {
	fx := newSessionFixture()
	resident := &mockConn{}
	fx.connect(t, fx.session(resident), "bob", "1")
	before := len(resident.received())

	c := &mockConn{}
	s := fx.session(c)
	s.teardown()

	assert.True(t, c.closed)
	assert.Len(t, resident.received(), before, "no presence change was ever made")
}

func TestSession_DisconnectMidFragment(t *testing.T) {
	fx := newSessionFixture()
	alice := &mockConn{}
	bob := &mockConn{}
	aliceSess := fx.session(alice)
	fx.connect(t, aliceSess, "alice", "1")
	fx.connect(t, fx.session(bob), "bob", "1")

	for _, idx := range []int{0, 1} {
		send(t, aliceSess, map[string]any{
			"type": "image", "image": "x",
			"chunkIndex": idx, "chunkTotal": 3,
		})
	}
	aliceSess.teardown()

	assert.Empty(t, fx.messages.records("1"), "incomplete stream must never surface")
	frames := bob.received()
	last := frames[len(frames)-1]
	assert.Equal(t, frameUserList, last["type"])
	assert.Equal(t, []string{"bob"}, last["users"])
	for _, f := range bob.received() {
		assert.NotEqual(t, "image", f["type"])
	}
}

func TestSession_SecondConnectReRegisters(t *testing.T) {
	fx := newSessionFixture()
	c := &mockConn{}
	s := fx.session(c)
	fx.connect(t, s, "alice", "1")

	// Re-handshake under a new identity; the old entry is orphaned until a
	// failed send prunes it.
	fx.connect(t, s, "alice2", "1")

	assert.ElementsMatch(t, []string{"alice", "alice2"}, fx.hub.reg.listUsers("1"))

	send(t, s, map[string]any{"type": "text", "message": "hi"})
	recs := fx.messages.records("1")
	require.Len(t, recs, 1)
	assert.Equal(t, "alice2", recs[0].Sender, "traffic is attributed to the new key")
}

func TestSession_CustomKindBroadcastVerbatim(t *testing.T) {
	fx := newSessionFixture()
	c := &mockConn{}
	s := fx.session(c)
	fx.connect(t, s, "alice", "1")

	send(t, s, map[string]any{"type": "sticker", "message": ":cat:"})

	recs := fx.messages.records("1")
	require.Len(t, recs, 1)
	assert.Equal(t, "sticker", recs[0].Kind)

	frames := c.received()
	last := frames[len(frames)-1]
	assert.Equal(t, "sticker", last["type"])
	assert.Equal(t, ":cat:", last["message"])
}
