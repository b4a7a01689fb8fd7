package ws

import "go.uber.org/zap"

// Hub fans messages out to every live connection in a room and prunes peers
// whose transport has died. Presence and fan-out share one registry so a
// broadcast can never deliver to a key that unregister already removed.
type Hub struct {
	reg *registry
}

func NewHub() *Hub { return &Hub{reg: newRegistry()} }

// Broadcast delivers msg to the room's current membership. The snapshot is
// taken under the registry lock, the writes happen outside it; a failed send
// drops that peer from the registry (no retry, best effort).
func (h *Hub) Broadcast(roomID string, msg any) {
	for key, c := range h.reg.snapshot(roomID) {
		if err := c.writeJSON(msg); err != nil {
			zap.L().Debug("ws.broadcast_prune",
				zap.String("room", key.RoomID),
				zap.String("user", key.Username),
				zap.Error(err),
			)
			h.reg.unregister(key, c)
			c.close()
		}
	}
}

// BroadcastUserList announces the room's occupant set to the whole room.
// Called after every join and leave.
func (h *Hub) BroadcastUserList(roomID string) {
	h.Broadcast(roomID, userListFrame(h.reg.listUsers(roomID)))
}
