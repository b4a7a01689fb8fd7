package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must be < pongWait

	// Chunked image/audio payloads arrive base64-encoded, so frames get a
	// generous read limit.
	maxFrameSize = 1 << 20

	frameTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
}

type WsServer struct {
	hub      *Hub
	frag     *reassembler
	messages HistoryStore
	rooms    RoomStore
}

func NewWsServer(hub *Hub, messages HistoryStore, rooms RoomStore) *WsServer {
	return &WsServer{
		hub:      hub,
		frag:     newReassembler(),
		messages: messages,
		rooms:    rooms,
	}
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

// Handle upgrades the request and hands the connection to its own session
// goroutine. Identity and room are declared later, in the connect frame.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxFrameSize)

	wsConn := &clientConn{rawConn: rawConn}
	go s.reader(wsConn)
	go s.pinger(wsConn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

// reader owns the session for one connection: every frame is handled on this
// goroutine, and teardown runs exactly once when the transport dies.
func (s *WsServer) reader(wsConn *clientConn) {
	sess := newSession(wsConn, s.hub, s.frag, s.messages, s.rooms)
	defer sess.teardown()

	_ = wsConn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.rawConn.SetPongHandler(func(string) error {
		return wsConn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := wsConn.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Debug("ws.read", zap.Error(err))
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		sess.handleFrame(ctx, data)
		cancel()
	}
}

func (s *WsServer) pinger(wsConn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := wsConn.ping(); err != nil {
			wsConn.close()
			return
		}
	}
}
