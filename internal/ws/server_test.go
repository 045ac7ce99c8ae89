package ws

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nerd-coderZero/Chat-application/internal/auth"
)

// fakeAuthBackend mimics the collaborator's POST /api/login/ contract:
// 200 + identity JSON for known tokens, 401 otherwise.
func fakeAuthBackend(t *testing.T) *httptest.Server {
	t.Helper()
	identities := map[string]auth.Identity{
		"alice-token": {ID: 7, Username: "alice"},
		"bob-token":   {ID: 8, Username: "bob"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/login/" {
			http.NotFound(w, r)
			return
		}
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Token ")
		id, ok := identities[tok]
		if !ok {
			http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(id)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestStack(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authSrv := fakeAuthBackend(t)
	verifier := auth.NewHTTPVerifier(authSrv.URL, 2*time.Second)

	hub := NewHub()
	wsSrv := NewWsServer(hub, verifier, nil, 4096)

	engine := gin.New()
	engine.GET("/ws/chat/*room", wsSrv.Handle)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base, path string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(base+path, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func expectPolicyClose(t *testing.T, conn *websocket.Conn, reason string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, reason, closeErr.Text)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout())
}

func TestHandshake_MissingToken(t *testing.T) {
	hub, base := newTestStack(t)

	conn := dial(t, base, "/ws/chat/42/")
	expectPolicyClose(t, conn, "No token in URL parameters")

	rooms, clients := hub.Stats()
	assert.Zero(t, rooms, "registry must stay untouched")
	assert.Zero(t, clients)
}

func TestHandshake_MissingRoom(t *testing.T) {
	hub, base := newTestStack(t)

	conn := dial(t, base, "/ws/chat/?token=alice-token")
	expectPolicyClose(t, conn, "No room in URL path")

	rooms, _ := hub.Stats()
	assert.Zero(t, rooms)
}

func TestHandshake_InvalidToken(t *testing.T) {
	hub, base := newTestStack(t)

	conn := dial(t, base, "/ws/chat/42/?token=wrong")
	expectPolicyClose(t, conn, "Invalid token")

	rooms, _ := hub.Stats()
	assert.Zero(t, rooms)
}

func TestHandshake_Success(t *testing.T) {
	hub, base := newTestStack(t)

	conn := dial(t, base, "/ws/chat/42/?token=alice-token")
	ev := readEvent(t, conn)

	assert.Equal(t, TypeConnectionEstablished, ev["type"])
	assert.Equal(t, "Connected to chat server", ev["message"])
	user, ok := ev["user"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, user["id"])
	assert.Equal(t, "alice", user["username"])

	rooms, clients := hub.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, clients)
}

func TestChat_RoomFanout(t *testing.T) {
	_, base := newTestStack(t)

	alice := dial(t, base, "/ws/chat/42/?token=alice-token")
	readEvent(t, alice)
	bob := dial(t, base, "/ws/chat/42/?token=bob-token")
	readEvent(t, bob)

	msg := `{"type":"chat_message","message":"hi","receiver_id":8}`
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(msg)))

	ev := readEvent(t, bob)
	assert.Equal(t, TypeChatMessage, ev["type"])
	assert.Equal(t, "hi", ev["message"])
	assert.EqualValues(t, 7, ev["sender"], "sender id comes from the verified identity, not the frame")

	// the sender never hears its own message back
	expectSilence(t, alice)
}

func TestChat_NoCrossRoomDelivery(t *testing.T) {
	_, base := newTestStack(t)

	alice := dial(t, base, "/ws/chat/42/?token=alice-token")
	readEvent(t, alice)
	bob := dial(t, base, "/ws/chat/99/?token=bob-token")
	readEvent(t, bob)

	msg := `{"type":"chat_message","message":"hi","receiver_id":8}`
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(msg)))

	expectSilence(t, bob)
}

func TestChat_MalformedFrameIsMessageFatalOnly(t *testing.T) {
	hub, base := newTestStack(t)

	alice := dial(t, base, "/ws/chat/42/?token=alice-token")
	readEvent(t, alice)
	bob := dial(t, base, "/ws/chat/42/?token=bob-token")
	readEvent(t, bob)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"not":"valid chat message"}`)))

	ev := readEvent(t, alice)
	assert.Equal(t, TypeError, ev["type"])
	assert.NotEmpty(t, ev["message"])

	expectSilence(t, bob)

	rooms, clients := hub.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 2, clients, "a bad frame must not end the session")

	// session still works after the error event
	good := `{"type":"chat_message","message":"still here","receiver_id":8}`
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(good)))
	ev = readEvent(t, bob)
	assert.Equal(t, "still here", ev["message"])
}

func TestDisconnect_DeregistersExactlyOnce(t *testing.T) {
	hub, base := newTestStack(t)

	alice := dial(t, base, "/ws/chat/42/?token=alice-token")
	readEvent(t, alice)
	bob := dial(t, base, "/ws/chat/42/?token=bob-token")
	readEvent(t, bob)

	// abrupt close, no close frame
	require.NoError(t, alice.Close())

	assert.Eventually(t, func() bool {
		_, clients := hub.Stats()
		return clients == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.Close())
	assert.Eventually(t, func() bool {
		rooms, _ := hub.Stats()
		return rooms == 0
	}, 2*time.Second, 10*time.Millisecond, "room must be removed with its last member")
}
