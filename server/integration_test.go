package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/projectflow/flowchat/shared"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) shared.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env shared.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return env
}

func sendJoin(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	if err := conn.WriteJSON(shared.NewEnvelope(shared.JoinEvent, shared.JoinRequest{Room: room})); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
}

func TestWebSocketDelivery(t *testing.T) {
	router, _, hub := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	aliceToken, _ := registerUser(t, router, "alice")
	bobToken, bobID := registerUser(t, router, "bob")

	conn := dialWS(t, srv, bobToken)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "connection registered")

	sendJoin(t, conn, shared.GlobalRoom)
	sendJoin(t, conn, shared.UserRoom(bobID))
	waitFor(t, func() bool {
		return hub.RoomSize(shared.GlobalRoom) == 1 && hub.RoomSize(shared.UserRoom(bobID)) == 1
	}, "room joins processed")

	// Send over the HTTP path; delivery arrives over the socket
	rec := doJSON(t, router, "POST", "/api/messages", aliceToken, map[string]string{"text": "hello team"})
	if rec.Code != 201 {
		t.Fatalf("Failed to create message: %d", rec.Code)
	}

	env := readEvent(t, conn)
	if env.Type != shared.MessageEvent {
		t.Fatalf("Expected message event first, got %s", env.Type)
	}
	var msg shared.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("Failed to decode message payload: %v", err)
	}
	if msg.Text != "hello team" || msg.SenderName != "alice" {
		t.Errorf("Unexpected delivered payload: %+v", msg)
	}

	env = readEvent(t, conn)
	if env.Type != shared.NotificationEvent {
		t.Fatalf("Expected notification event second, got %s", env.Type)
	}
	var n shared.Notification
	if err := json.Unmarshal(env.Data, &n); err != nil {
		t.Fatalf("Failed to decode notification payload: %v", err)
	}
	if n.Kind != "new_message" || n.MessageID != msg.ID {
		t.Errorf("Unexpected notification: %+v", n)
	}
}

func TestWebSocketForeignRoomRefused(t *testing.T) {
	router, store, hub := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	_, _ = registerUser(t, router, "alice")
	bobToken, bobID := registerUser(t, router, "bob")

	alice, err := store.UserByUsername("alice")
	if err != nil {
		t.Fatalf("Failed to look up alice: %v", err)
	}

	conn := dialWS(t, srv, bobToken)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "connection registered")

	// bob tries to sneak into alice's notification room
	sendJoin(t, conn, shared.UserRoom(alice.ID))
	sendJoin(t, conn, shared.UserRoom(bobID))
	waitFor(t, func() bool { return hub.RoomSize(shared.UserRoom(bobID)) == 1 }, "own room join processed")

	if hub.RoomSize(shared.UserRoom(alice.ID)) != 0 {
		t.Error("A connection must not be able to join another user's room")
	}
}

func TestWebSocketDisconnectDiscardsMembership(t *testing.T) {
	router, _, hub := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	token, userID := registerUser(t, router, "alice")

	conn := dialWS(t, srv, token)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "connection registered")
	sendJoin(t, conn, shared.GlobalRoom)
	sendJoin(t, conn, shared.UserRoom(userID))
	waitFor(t, func() bool { return hub.RoomSize(shared.GlobalRoom) == 1 }, "join processed")

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "disconnect processed")

	if hub.RoomSize(shared.GlobalRoom) != 0 || hub.RoomSize(shared.UserRoom(userID)) != 0 {
		t.Error("Disconnect must discard all room membership")
	}

	// A fresh connection starts with no rooms and must re-join
	conn2 := dialWS(t, srv, token)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "reconnect registered")
	if hub.RoomSize(shared.GlobalRoom) != 0 {
		t.Error("Room membership must not be restored across reconnects")
	}
	_ = conn2
}
