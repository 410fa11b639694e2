// Package integration contains end-to-end tests for the room relay protocol:
// joining, member notifications, encrypted message fan-out, and room cleanup,
// all exercised over real WebSocket connections.
package integration

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shebin-sam/QuickChat/internal/server"
	"github.com/shebin-sam/QuickChat/test/testhelpers"
)

// waitForEvent reads frames until one carries the wanted event name. Other
// events arriving in between are discarded.
func waitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %q event", event)
		}
		env, err := testhelpers.ReadEnvelope(conn, remaining)
		if err != nil {
			t.Fatalf("Failed to read while waiting for %q event: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

func decodeUsers(t *testing.T, env server.Envelope) []server.User {
	t.Helper()
	var users []server.User
	if err := json.Unmarshal(env.Payload, &users); err != nil {
		t.Fatalf("Failed to decode user list: %v", err)
	}
	return users
}

func decodeUser(t *testing.T, env server.Envelope) server.User {
	t.Helper()
	var user server.User
	if err := json.Unmarshal(env.Payload, &user); err != nil {
		t.Fatalf("Failed to decode user: %v", err)
	}
	return user
}

func decodeUserLeft(t *testing.T, env server.Envelope) server.UserLeftPayload {
	t.Helper()
	var left server.UserLeftPayload
	if err := json.Unmarshal(env.Payload, &left); err != nil {
		t.Fatalf("Failed to decode userLeft payload: %v", err)
	}
	return left
}

func decodeMessageEvent(t *testing.T, env server.Envelope) server.MessageEvent {
	t.Helper()
	var msg server.MessageEvent
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		t.Fatalf("Failed to decode message payload: %v", err)
	}
	return msg
}

// joinRoom connects a client, joins the room, and consumes the welcome
// sequence. It returns the connection and the member snapshot the relay sent.
func joinRoom(t *testing.T, wsURL, origin, roomID, nickname, color string) (*websocket.Conn, []server.User) {
	t.Helper()

	conn, err := testhelpers.ConnectWebSocket(wsURL, origin)
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", nickname, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := testhelpers.SendJoin(conn, roomID, nickname, color); err != nil {
		t.Fatalf("Failed to send join for %s: %v", nickname, err)
	}

	snapshotEnv := waitForEvent(t, conn, server.EventCurrentUsers, 2*time.Second)
	snapshot := decodeUsers(t, snapshotEnv)

	welcomeEnv := waitForEvent(t, conn, server.EventMessage, 2*time.Second)
	welcome := decodeMessageEvent(t, welcomeEnv)
	if welcome.Sender != server.SystemSender {
		t.Fatalf("Expected System welcome for %s, got sender %q", nickname, welcome.Sender)
	}
	expectedText := "Welcome to room " + roomID + "!"
	if welcome.Text != expectedText {
		t.Fatalf("Expected welcome text %q, got %q", expectedText, welcome.Text)
	}

	return conn, snapshot
}

// drainWelcome consumes the currentUsers snapshot and System welcome that
// follow a join when the test does not care about their contents.
func drainWelcome(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	waitForEvent(t, conn, server.EventCurrentUsers, 2*time.Second)
	waitForEvent(t, conn, server.EventMessage, 2*time.Second)
}

func waitForRoomGone(t *testing.T, roomID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !server.GetHub().HasRoom(roomID) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("Room %q still exists after its last member left", roomID)
}

// TestRoomRelayScenario walks two clients through a complete room lifecycle:
// first join creates the room, the second joiner sees the existing member,
// everyone in the room receives each encrypted message exactly once including
// the sender, departures are announced, and the empty room is deleted.
func TestRoomRelayScenario(t *testing.T) {
	server.StartHub()

	mux := server.SetupRoutes()
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	configureServerForTest(t, testServer.URL, nil)

	wsURL := buildWebSocketURL(t, testServer.URL)
	const roomID = "SCN1"

	alice, aliceSnapshot := joinRoom(t, wsURL, testServer.URL, roomID, "alice", "#ff0000")
	if len(aliceSnapshot) != 0 {
		t.Fatalf("First joiner should see an empty room, got %d members", len(aliceSnapshot))
	}
	if !server.GetHub().HasRoom(roomID) {
		t.Fatalf("Room should exist after the first join")
	}

	bob, bobSnapshot := joinRoom(t, wsURL, testServer.URL, roomID, "bob", "#0000ff")
	if len(bobSnapshot) != 1 {
		t.Fatalf("Second joiner should see one existing member, got %d", len(bobSnapshot))
	}
	if bobSnapshot[0].Nickname != "alice" || bobSnapshot[0].Color != "#ff0000" {
		t.Fatalf("Snapshot should describe alice, got %+v", bobSnapshot[0])
	}
	aliceID := bobSnapshot[0].ID
	if aliceID == "" {
		t.Fatalf("Snapshot entries must carry a session id")
	}

	// Alice is told about bob: a userJoined event followed by a System notice.
	joinedEnv := waitForEvent(t, alice, server.EventUserJoined, 2*time.Second)
	bobUser := decodeUser(t, joinedEnv)
	if bobUser.Nickname != "bob" || bobUser.Color != "#0000ff" {
		t.Fatalf("Expected userJoined for bob, got %+v", bobUser)
	}
	bobID := bobUser.ID

	noticeEnv := waitForEvent(t, alice, server.EventMessage, 2*time.Second)
	notice := decodeMessageEvent(t, noticeEnv)
	if notice.Sender != server.SystemSender || notice.Text != "bob joined the chat" {
		t.Fatalf("Expected System join notice, got %+v", notice)
	}
	if notice.ID != "system-join-"+bobID {
		t.Errorf("Expected join notice id %q, got %q", "system-join-"+bobID, notice.ID)
	}

	// Alice sends a message; both members receive the same server echo.
	const ciphertext = "YzEtY2lwaGVydGV4dA=="
	const iv = "000102030405060708090a0b0c0d0e0f"
	if err := testhelpers.SendChat(alice, roomID, ciphertext, iv); err != nil {
		t.Fatalf("Failed to send chat from alice: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		env := waitForEvent(t, conn, server.EventMessage, 2*time.Second)
		msg := decodeMessageEvent(t, env)
		if msg.Sender != "alice" || msg.SenderColor != "#ff0000" {
			t.Errorf("%s: expected message from alice, got %+v", name, msg)
		}
		if msg.Ciphertext != ciphertext || msg.IV != iv {
			t.Errorf("%s: encrypted payload was altered: %+v", name, msg)
		}
		if msg.Text != "" {
			t.Errorf("%s: user messages must not carry plaintext, got %q", name, msg.Text)
		}
		if !strings.HasPrefix(msg.ID, aliceID+"-") {
			t.Errorf("%s: message id should start with the sender session id, got %q", name, msg.ID)
		}
		if msg.Timestamp == 0 {
			t.Errorf("%s: message timestamp missing", name)
		}
	}

	// Bob leaves; alice is notified and the room survives.
	if err := testhelpers.CloseWebSocket(bob); err != nil {
		t.Fatalf("Failed to close bob's connection: %v", err)
	}

	leftEnv := waitForEvent(t, alice, server.EventUserLeft, 2*time.Second)
	if left := decodeUserLeft(t, leftEnv); left.ID != bobID {
		t.Errorf("Expected userLeft for bob (%s), got %s", bobID, left.ID)
	}

	leaveNoticeEnv := waitForEvent(t, alice, server.EventMessage, 2*time.Second)
	leaveNotice := decodeMessageEvent(t, leaveNoticeEnv)
	if leaveNotice.Sender != server.SystemSender || leaveNotice.Text != "bob left the chat" {
		t.Fatalf("Expected System leave notice, got %+v", leaveNotice)
	}
	if !server.GetHub().HasRoom(roomID) {
		t.Errorf("Room should survive while a member remains")
	}

	// The last departure deletes the room.
	if err := testhelpers.CloseWebSocket(alice); err != nil {
		t.Fatalf("Failed to close alice's connection: %v", err)
	}
	waitForRoomGone(t, roomID)
}

// TestRelayRoomIsolation verifies that messages never cross room boundaries.
func TestRelayRoomIsolation(t *testing.T) {
	server.StartHub()

	mux := server.SetupRoutes()
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	configureServerForTest(t, testServer.URL, nil)

	wsURL := buildWebSocketURL(t, testServer.URL)

	sender, _ := joinRoom(t, wsURL, testServer.URL, "ISOA", "sender", "#111111")
	listener, _ := joinRoom(t, wsURL, testServer.URL, "ISOA", "listener", "#222222")
	outsider, _ := joinRoom(t, wsURL, testServer.URL, "ISOB", "outsider", "#333333")

	// The sender's room saw a second join; drain those notifications.
	waitForEvent(t, sender, server.EventUserJoined, 2*time.Second)
	waitForEvent(t, sender, server.EventMessage, 2*time.Second)

	if err := testhelpers.SendChat(sender, "ISOA", "aXNvbGF0ZWQ=", "ffeeddccbbaa99887766554433221100"); err != nil {
		t.Fatalf("Failed to send chat: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"sender": sender, "listener": listener} {
		env := waitForEvent(t, conn, server.EventMessage, 2*time.Second)
		if msg := decodeMessageEvent(t, env); msg.Ciphertext != "aXNvbGF0ZWQ=" {
			t.Errorf("%s: expected the room's message, got %+v", name, msg)
		}
	}

	expectNoEvent(t, outsider, 300*time.Millisecond)
}

// TestRelayDeliveryOrder verifies that every member observes messages from
// one room in the same order they were relayed.
func TestRelayDeliveryOrder(t *testing.T) {
	server.StartHub()

	mux := server.SetupRoutes()
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	configureServerForTest(t, testServer.URL, nil)

	wsURL := buildWebSocketURL(t, testServer.URL)
	const roomID = "ORDR"

	sender, _ := joinRoom(t, wsURL, testServer.URL, roomID, "sender", "#aa0000")
	receiver, _ := joinRoom(t, wsURL, testServer.URL, roomID, "receiver", "#00aa00")

	waitForEvent(t, sender, server.EventUserJoined, 2*time.Second)
	waitForEvent(t, sender, server.EventMessage, 2*time.Second)

	const numMessages = 10
	for i := 0; i < numMessages; i++ {
		if err := testhelpers.SendChat(sender, roomID, fmt.Sprintf("cipher-%02d", i), "00ff"); err != nil {
			t.Fatalf("Failed to send message %d: %v", i, err)
		}
	}

	for name, conn := range map[string]*websocket.Conn{"sender": sender, "receiver": receiver} {
		for i := 0; i < numMessages; i++ {
			env := waitForEvent(t, conn, server.EventMessage, 2*time.Second)
			msg := decodeMessageEvent(t, env)
			expected := fmt.Sprintf("cipher-%02d", i)
			if msg.Ciphertext != expected {
				t.Fatalf("%s: message %d out of order: expected %q, got %q", name, i, expected, msg.Ciphertext)
			}
		}
	}
}

// TestRelayConcurrentRooms runs several rooms at once to check that traffic
// in one room is never serialized against or leaked into another.
func TestRelayConcurrentRooms(t *testing.T) {
	server.StartHub()

	mux := server.SetupRoutes()
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	configureServerForTest(t, testServer.URL, nil)

	wsURL := buildWebSocketURL(t, testServer.URL)

	const numRooms = 4
	type roomPair struct {
		roomID   string
		sender   *websocket.Conn
		receiver *websocket.Conn
	}

	pairs := make([]roomPair, 0, numRooms)
	for i := 0; i < numRooms; i++ {
		roomID := fmt.Sprintf("CONC%d", i)
		sender, _ := joinRoom(t, wsURL, testServer.URL, roomID, "sender", "#400000")
		receiver, _ := joinRoom(t, wsURL, testServer.URL, roomID, "receiver", "#004000")
		waitForEvent(t, sender, server.EventUserJoined, 2*time.Second)
		waitForEvent(t, sender, server.EventMessage, 2*time.Second)
		pairs = append(pairs, roomPair{roomID: roomID, sender: sender, receiver: receiver})
	}

	for _, p := range pairs {
		if err := testhelpers.SendChat(p.sender, p.roomID, "room-"+p.roomID, "beef"); err != nil {
			t.Fatalf("Failed to send in room %s: %v", p.roomID, err)
		}
	}

	for _, p := range pairs {
		env := waitForEvent(t, p.receiver, server.EventMessage, 2*time.Second)
		if msg := decodeMessageEvent(t, env); msg.Ciphertext != "room-"+p.roomID {
			t.Errorf("Room %s received foreign payload %q", p.roomID, msg.Ciphertext)
		}
	}
}
