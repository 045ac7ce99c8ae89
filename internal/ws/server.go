package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Nerd-coderZero/Chat-application/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second // must be < pongWait
)

// MessageRecorder receives every delivered chat message; implementations
// must not block the session's receive loop.
type MessageRecorder interface {
	Record(roomID string, senderID, receiverID int64, text string)
}

type WsServer struct {
	hub            *Hub
	verifier       auth.Verifier
	recorder       MessageRecorder // nil when history is disabled
	upgrader       websocket.Upgrader
	maxMessageSize int64
}

func NewWsServer(h *Hub, verifier auth.Verifier, recorder MessageRecorder, maxMessageSize int64) *WsServer {
	return &WsServer{
		hub:      h,
		verifier: verifier,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev-only
		},
		maxMessageSize: maxMessageSize,
	}
}

// extractRoomID picks the room out of the wildcard path suffix: the first
// non-empty segment after the /ws/chat/ prefix. Both "/42" and "/42/"
// resolve to "42".
func extractRoomID(wild string) string {
	for _, seg := range strings.Split(wild, "/") {
		if seg != "" {
			return seg
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

// Handle runs one session: handshake, registration, receive loop. Handshake
// failures close the socket with a 1008 reason before any registry mutation.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	roomID := extractRoomID(ginCtx.Param("room"))
	token := ginCtx.Query("token")

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	conn := &clientConn{rawConn: rawConn}

	// ─────────────────── Connecting ───────────────────────────
	if roomID == "" {
		conn.closePolicy("No room in URL path")
		return
	}
	if token == "" {
		conn.closePolicy("No token in URL parameters")
		return
	}

	// ─────────────────── Authenticating ───────────────────────
	identity := s.verifier.Verify(ginCtx.Request.Context(), token)
	if identity == nil {
		zap.L().Info("ws.auth_rejected", zap.String("room", roomID))
		conn.closePolicy("Invalid token")
		return
	}

	// ─────────────────── Registered ───────────────────────────
	conn.setupRead(s.maxMessageSize)
	s.hub.Join(roomID, conn)

	if err := conn.writeJSON(ConnectionEstablished{
		Type:    TypeConnectionEstablished,
		Message: "Connected to chat server",
		User:    identity,
	}); err != nil {
		s.hub.Leave(roomID, conn)
		_ = conn.Close()
		return
	}

	go s.reader(roomID, identity, conn)
	go s.pinger(conn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

// reader is the session's receive loop. Deregistration runs exactly once on
// every exit path; a panic inside the loop is confined to this session.
func (s *WsServer) reader(roomID string, identity *auth.Identity, conn *clientConn) {
	defer func() {
		s.hub.Leave(roomID, conn)
		_ = conn.Close()
	}()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("ws.session_panic",
				zap.String("room", roomID),
				zap.Int64("user", identity.ID),
				zap.Any("panic", r),
			)
			_ = conn.writeJSON(ErrorEvent{Type: TypeError, Message: "internal error"})
		}
	}()

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				zap.L().Warn("ws.read", zap.String("room", roomID), zap.Error(err))
			}
			return // client closed or errored
		}

		msg, err := parseInbound(data)
		if err != nil {
			_ = conn.writeJSON(ErrorEvent{Type: TypeError, Message: err.Error()})
			continue
		}

		out, err := json.Marshal(ChatBroadcast{
			Type:    TypeChatMessage,
			Message: msg.Text,
			Sender:  identity.ID,
		})
		if err != nil {
			continue
		}
		s.hub.Broadcast(roomID, conn, out)

		if s.recorder != nil {
			s.recorder.Record(roomID, identity.ID, msg.ReceiverID, msg.Text)
		}
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.ping(); err != nil {
			_ = conn.Close()
			return
		}
	}
}
