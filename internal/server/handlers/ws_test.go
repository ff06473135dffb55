package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/server/presence"
	"github.com/iudanet/boardsync/pkg/api"
)

// wsTestServer поднимает httptest сервер с настоящим registry.
// Identity подставляется тестовым middleware из заголовка X-Test-User,
// чтобы не тащить JWT в транспортные тесты.
func wsTestServer(t *testing.T) (*httptest.Server, *presence.Registry) {
	t.Helper()

	cfg := presence.DefaultConfig()
	reg := presence.NewRegistry(cfg, testLogger(), nil)
	t.Cleanup(reg.Close)

	wsHandler := NewWSHandler(testLogger(), reg)

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/sessions/{sessionID}/ws", wsHandler.Serve)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			userID := req.Header.Get("X-Test-User")
			ctx := WithIdentity(req.Context(), Identity{
				UserID:      userID,
				DisplayName: strings.ToUpper(userID),
				Role:        "editor",
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dialWS(t *testing.T, srv *httptest.Server, sessionID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + sessionID + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Test-User": {userID}})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readEnvelope читает следующий конверт с таймаутом
func readEnvelope(t *testing.T, ws *websocket.Conn) api.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env api.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func sendEnvelope(t *testing.T, ws *websocket.Conn, msgType, sessionID, userID string, payload any) {
	t.Helper()
	env, err := api.NewEnvelope(msgType, sessionID, userID, payload, time.Now())
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))
}

func TestWS_JoinUnknownSession(t *testing.T) {
	srv, _ := wsTestServer(t)

	ws := dialWS(t, srv, "ghost", "alice")
	env := readEnvelope(t, ws)

	assert.Equal(t, api.TypeError, env.Type)
	payload, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "session_not_found", payload.(*api.ErrorPayload).Code)

	// Сервер закрывает сокет после error envelope
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var discard api.Envelope
	assert.Error(t, ws.ReadJSON(&discard))
}

func TestWS_JoinBroadcastAndCursorFanOut(t *testing.T) {
	srv, reg := wsTestServer(t)
	require.NoError(t, reg.CreateSession("board-1"))

	alice := dialWS(t, srv, "board-1", "alice")
	bob := dialWS(t, srv, "board-1", "bob")

	// Alice видит появление Bob
	env := readEnvelope(t, alice)
	require.Equal(t, api.TypeUserJoined, env.Type)
	assert.Equal(t, "bob", env.UserID)
	payload, err := env.Decode()
	require.NoError(t, err)
	joined := payload.(*api.UserJoinedPayload)
	assert.Equal(t, "BOB", joined.DisplayName)
	assert.NotEmpty(t, joined.Color)

	// Bob двигает курсор - Alice получает, сам Bob нет
	sendEnvelope(t, bob, api.TypeCursorUpdate, "board-1", "bob", api.CursorUpdatePayload{
		Position: api.Position{X: 42, Y: 17, ViewportWidth: 1280, ViewportHeight: 720},
	})

	env = readEnvelope(t, alice)
	require.Equal(t, api.TypeCursorUpdate, env.Type)
	assert.Equal(t, "bob", env.UserID)
	payload, err = env.Decode()
	require.NoError(t, err)
	assert.Equal(t, float64(42), payload.(*api.CursorUpdatePayload).Position.X)
}

func TestWS_LockRoundTrip(t *testing.T) {
	srv, reg := wsTestServer(t)
	require.NoError(t, reg.CreateSession("board-1"))

	alice := dialWS(t, srv, "board-1", "alice")
	bob := dialWS(t, srv, "board-1", "bob")
	readEnvelope(t, alice) // user_joined bob

	// Alice берет лок - оба получают lock_acquired
	sendEnvelope(t, alice, api.TypeLockAcquire, "board-1", "alice", api.LockAcquirePayload{ResourceID: "shape-7"})

	for _, ws := range []*websocket.Conn{alice, bob} {
		env := readEnvelope(t, ws)
		require.Equal(t, api.TypeLockAcquired, env.Type)
		payload, err := env.Decode()
		require.NoError(t, err)
		acquired := payload.(*api.LockAcquiredPayload)
		assert.Equal(t, "shape-7", acquired.ResourceID)
		assert.Equal(t, "alice", acquired.HolderID)
	}

	// Bob пытается взять тот же ресурс - отказ только ему
	sendEnvelope(t, bob, api.TypeLockAcquire, "board-1", "bob", api.LockAcquirePayload{ResourceID: "shape-7"})

	env := readEnvelope(t, bob)
	require.Equal(t, api.TypeLockDenied, env.Type)
	payload, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.(*api.LockDeniedPayload).CurrentHolder)
}

func TestWS_SpoofedUserIDRejected(t *testing.T) {
	srv, reg := wsTestServer(t)
	require.NoError(t, reg.CreateSession("board-1"))

	alice := dialWS(t, srv, "board-1", "alice")

	// Конверт с чужим user_id отвергается, операция не применяется
	sendEnvelope(t, alice, api.TypeCursorUpdate, "board-1", "mallory", api.CursorUpdatePayload{
		Position: api.Position{X: 1, Y: 1},
	})

	env := readEnvelope(t, alice)
	require.Equal(t, api.TypeError, env.Type)
	payload, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "invalid_message", payload.(*api.ErrorPayload).Code)
}

func TestWS_UnknownTypeRejected(t *testing.T) {
	srv, reg := wsTestServer(t)
	require.NoError(t, reg.CreateSession("board-1"))

	alice := dialWS(t, srv, "board-1", "alice")
	require.NoError(t, alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"teleport","session_id":"board-1","user_id":"alice"}`)))

	env := readEnvelope(t, alice)
	require.Equal(t, api.TypeError, env.Type)
}

func TestWS_ExplicitLeave(t *testing.T) {
	srv, reg := wsTestServer(t)
	require.NoError(t, reg.CreateSession("board-1"))

	alice := dialWS(t, srv, "board-1", "alice")
	bob := dialWS(t, srv, "board-1", "bob")
	readEnvelope(t, alice) // user_joined bob

	sendEnvelope(t, bob, api.TypeLeave, "board-1", "bob", nil)

	env := readEnvelope(t, alice)
	require.Equal(t, api.TypeUserLeft, env.Type)
	assert.Equal(t, "bob", env.UserID)
	payload, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "leave", payload.(*api.UserLeftPayload).Reason)
}
