package ws

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"chathub/internal/store/history"
)

// HistoryStore is the per-room append-only message log consumed by sessions.
type HistoryStore interface {
	Append(ctx context.Context, roomID string, rec history.Record) error
	ListOrdered(ctx context.Context, roomID string) ([]history.Record, error)
}

// RoomStore is the room metadata collaborator.
type RoomStore interface {
	SetRoomName(ctx context.Context, roomID, name string) error
}

type sessionState int

const (
	awaitingHandshake sessionState = iota
	sessionActive
	sessionClosed
)

// session drives one connection through handshake, active traffic and
// teardown. All methods run on the connection's reader goroutine, so the
// struct itself needs no locking; shared state lives in the hub's registry
// and the reassembler.
type session struct {
	state sessionState
	conn  conn
	key   presenceKey

	hub      *Hub
	frag     *reassembler
	messages HistoryStore
	rooms    RoomStore

	now    func() float64
	lastTS float64
}

func newSession(c conn, hub *Hub, frag *reassembler, messages HistoryStore, rooms RoomStore) *session {
	return &session{
		state:    awaitingHandshake,
		conn:     c,
		hub:      hub,
		frag:     frag,
		messages: messages,
		rooms:    rooms,
		now:      func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// handleFrame processes one inbound frame. A malformed frame or a fault while
// processing it is logged and dropped; the session stays active.
func (s *session) handleFrame(ctx context.Context, data []byte) {
	if s.state == sessionClosed {
		return
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		zap.L().Warn("ws.malformed_frame", zap.Error(err))
		return
	}

	switch f.Type {
	case frameConnect:
		s.handleConnect(ctx, &f)
		return
	case frameGetUserList:
		if s.state != sessionActive {
			zap.L().Debug("ws.user_list_before_connect")
			return
		}
		_ = s.conn.writeJSON(userListFrame(s.hub.reg.listUsers(s.key.RoomID)))
		return
	}

	if s.state != sessionActive {
		zap.L().Debug("ws.frame_before_connect", zap.String("type", f.Type))
		return
	}

	switch {
	case f.Type == frameUpdateRoomName:
		s.handleRoomRename(ctx, &f)
	case f.fragmented():
		s.handleFragment(ctx, &f)
	case f.Type == kindFile:
		s.persistAndBroadcast(ctx, kindFile, "", f.FileName)
	default:
		kind := f.Type
		if kind == "" {
			kind = kindText
		}
		s.persistAndBroadcast(ctx, kind, f.payload(), "")
	}
}

// handleConnect registers the declared identity, announces the new occupant
// set and replays the room's history to this connection. A second connect on
// an already-active session re-registers under the new key; the prior entry
// is left to the failed-send prune.
func (s *session) handleConnect(ctx context.Context, f *frame) {
	if f.Username == "" || f.RoomID == "" {
		zap.L().Warn("ws.connect_missing_identity")
		return
	}

	s.key = presenceKey{Username: f.Username, RoomID: f.RoomID}
	s.hub.reg.register(s.key, s.conn)
	s.state = sessionActive

	zap.L().Info("ws.connect",
		zap.String("user", s.key.Username),
		zap.String("room", s.key.RoomID),
	)
	s.hub.BroadcastUserList(s.key.RoomID)
	s.replayHistory(ctx)
}

func (s *session) replayHistory(ctx context.Context) {
	records, err := s.messages.ListOrdered(ctx, s.key.RoomID)
	if err != nil {
		zap.L().Error("ws.history_replay", zap.Error(err))
		return
	}
	for _, rec := range records {
		if err := s.conn.writeJSON(chatFrame(frameHistory, rec)); err != nil {
			return // transport dead, the reader loop tears us down
		}
	}
}

func (s *session) handleRoomRename(ctx context.Context, f *frame) {
	if err := s.rooms.SetRoomName(ctx, s.key.RoomID, f.NewName); err != nil {
		// Same policy as history appends: the room still hears the rename.
		zap.L().Error("ws.room_rename", zap.Error(err))
	}
	s.hub.Broadcast(s.key.RoomID, roomNameUpdatedFrame(s.key.RoomID, f.NewName))
}

func (s *session) handleFragment(ctx context.Context, f *frame) {
	payload, done, err := s.frag.receiveFragment(
		s.key.Username, f.Type, *f.ChunkIndex, *f.ChunkTotal, f.payload())
	if err != nil {
		zap.L().Warn("ws.fragment_rejected",
			zap.String("user", s.key.Username),
			zap.String("kind", f.Type),
			zap.Error(err),
		)
		return
	}
	if !done {
		return
	}
	s.persistAndBroadcast(ctx, f.Type, payload, "")
}

// persistAndBroadcast stamps the completed message, appends it to the room
// log and fans it out. A failed append is logged but does not stop the
// broadcast: chat delivery is best effort and wins over durability.
func (s *session) persistAndBroadcast(ctx context.Context, kind, payload, fileName string) {
	rec := history.Record{
		Sender:    s.key.Username,
		Kind:      kind,
		Payload:   payload,
		FileName:  fileName,
		Timestamp: s.timestamp(),
	}
	if err := s.messages.Append(ctx, s.key.RoomID, rec); err != nil {
		zap.L().Error("ws.history_append",
			zap.String("room", s.key.RoomID),
			zap.Error(err),
		)
	}
	s.hub.Broadcast(s.key.RoomID, chatFrame(kind, rec))
}

// timestamp returns wall-clock seconds, nudged forward if the clock has not
// advanced since the session's previous message.
func (s *session) timestamp() float64 {
	ts := s.now()
	if ts <= s.lastTS {
		ts = s.lastTS + 1e-6
	}
	s.lastTS = ts
	return ts
}

// teardown drives the session to its terminal state: drop the presence entry
// if a handshake ever completed, tell the room, close the transport. Safe to
// call once per session, after the reader loop exits.
func (s *session) teardown() {
	if s.state == sessionClosed {
		return
	}
	registered := s.state == sessionActive
	s.state = sessionClosed

	if registered {
		s.hub.reg.unregister(s.key, s.conn)
		zap.L().Info("ws.disconnect",
			zap.String("user", s.key.Username),
			zap.String("room", s.key.RoomID),
		)
		s.hub.BroadcastUserList(s.key.RoomID)
	}
	s.conn.close()
}
