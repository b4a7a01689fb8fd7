package ws

import "chathub/internal/store/history"

// Frame type / kind names on the wire.
const (
	frameConnect         = "connect"
	frameGetUserList     = "get_user_list"
	frameUserList        = "user_list"
	frameHistory         = "history"
	frameUpdateRoomName  = "update_room_name"
	frameRoomNameUpdated = "room_name_updated"

	kindText  = "text"
	kindImage = "image"
	kindAudio = "audio"
	kindFile  = "file"
)

// frame is the superset of every inbound message shape. Which fields are
// meaningful depends on Type; chunked frames additionally carry
// ChunkIndex/ChunkTotal (pointers, so "absent" and "zero" stay distinct).
type frame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
	NewName  string `json:"newName"`
	FileName string `json:"fileName"`
	Message  string `json:"message"`
	Image    string `json:"image"`
	Audio    string `json:"audio"`

	ChunkIndex *int `json:"chunkIndex,omitempty"`
	ChunkTotal *int `json:"chunkTotal,omitempty"`
}

func (f *frame) fragmented() bool {
	return f.ChunkIndex != nil && f.ChunkTotal != nil
}

// payload extracts the inline body for this frame's kind. image and audio
// travel under their own key, everything else under "message".
func (f *frame) payload() string {
	switch f.Type {
	case kindImage:
		return f.Image
	case kindAudio:
		return f.Audio
	default:
		return f.Message
	}
}

// chatFrame renders a persisted record as an outbound frame. typ is the wire
// type: "history" for replay, the record's own kind for live broadcasts.
func chatFrame(typ string, rec history.Record) map[string]any {
	out := map[string]any{
		"type":      typ,
		"sender":    rec.Sender,
		"timestamp": rec.Timestamp,
	}
	switch rec.Kind {
	case kindImage:
		out["image"] = rec.Payload
	case kindAudio:
		out["audio"] = rec.Payload
	case kindFile:
		out["fileName"] = rec.FileName
	default:
		out["message"] = rec.Payload
	}
	return out
}

func userListFrame(users []string) map[string]any {
	return map[string]any{
		"type":  frameUserList,
		"users": users,
	}
}

func roomNameUpdatedFrame(roomID, newName string) map[string]any {
	return map[string]any{
		"type":    frameRoomNameUpdated,
		"roomId":  roomID,
		"newName": newName,
	}
}
