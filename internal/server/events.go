// Package server defines the wire-level event model: the envelope framing,
// inbound request payloads, and outbound event payloads including the
// relay-generated System notices.
package server

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event names carried in the envelope, client to server.
const (
	EventJoin    = "join"
	EventMessage = "message"
)

// Event names carried in the envelope, server to client.
const (
	EventCurrentUsers = "currentUsers"
	EventUserJoined   = "userJoined"
	EventUserLeft     = "userLeft"
)

// SystemSender is the reserved sender name for relay-generated notices.
// System messages carry plaintext in Text; user messages never do.
const SystemSender = "System"

const systemColor = "#666"

// Envelope frames every event on the wire. Payload stays raw until the
// event name selects a concrete type.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload is the client request to enter a room.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
}

// valid reports whether the payload passes gateway validation. The color is
// display-only and may be empty; room and nickname may not.
func (p JoinPayload) valid() bool {
	return p.RoomID != "" && p.Nickname != ""
}

// ChatPayload is an opaque encrypted message to relay. The server never
// inspects Ciphertext or IV.
type ChatPayload struct {
	RoomID     string `json:"roomId"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// User is the public identity of a session as sent to clients.
type User struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
}

// UserLeftPayload identifies a departed session.
type UserLeftPayload struct {
	ID string `json:"id"`
}

// MessageEvent is the outbound message payload. Exactly one of Text or the
// Ciphertext/IV pair is populated, depending on the sender.
type MessageEvent struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	SenderColor string `json:"senderColor"`
	Timestamp   int64  `json:"timestamp"`
	Ciphertext  string `json:"ciphertext,omitempty"`
	IV          string `json:"iv,omitempty"`
	Text        string `json:"text,omitempty"`
}

func encodeEvent(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func systemMessage(id, text string) MessageEvent {
	return MessageEvent{
		ID:          id,
		Sender:      SystemSender,
		SenderColor: systemColor,
		Timestamp:   nowMillis(),
		Text:        text,
	}
}

func welcomeMessage(roomID string) MessageEvent {
	return systemMessage("system-welcome", "Welcome to room "+roomID+"!")
}

func joinNotice(s *Session) MessageEvent {
	return systemMessage("system-join-"+s.ID, s.Nickname+" joined the chat")
}

func leaveNotice(s *Session) MessageEvent {
	return systemMessage("system-left-"+s.ID, s.Nickname+" left the chat")
}

// chatMessage wraps an opaque payload in a routing envelope. The message id
// combines the sender's session id with the send timestamp.
func chatMessage(sender *Session, ciphertext, iv string) MessageEvent {
	ts := nowMillis()
	return MessageEvent{
		ID:          sender.ID + "-" + strconv.FormatInt(ts, 10),
		Sender:      sender.Nickname,
		SenderColor: sender.Color,
		Timestamp:   ts,
		Ciphertext:  ciphertext,
		IV:          iv,
	}
}
