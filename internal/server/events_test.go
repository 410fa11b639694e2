package server

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEventEnvelope(t *testing.T) {
	data, err := encodeEvent(EventUserLeft, UserLeftPayload{ID: "abc"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, EventUserLeft, env.Event)

	var left UserLeftPayload
	require.NoError(t, json.Unmarshal(env.Payload, &left))
	assert.Equal(t, "abc", left.ID)
}

func TestJoinPayloadValidation(t *testing.T) {
	assert.True(t, JoinPayload{RoomID: "ABCD", Nickname: "alice"}.valid())
	assert.True(t, JoinPayload{RoomID: "ABCD", Nickname: "alice", Color: "#f00"}.valid())
	assert.False(t, JoinPayload{Nickname: "alice"}.valid())
	assert.False(t, JoinPayload{RoomID: "ABCD"}.valid())
	assert.False(t, JoinPayload{}.valid())
}

func TestSystemMessages(t *testing.T) {
	sess := newSession("bob", "#00f", nil)

	welcome := welcomeMessage("ABCD")
	assert.Equal(t, "system-welcome", welcome.ID)
	assert.Equal(t, SystemSender, welcome.Sender)
	assert.Equal(t, "#666", welcome.SenderColor)
	assert.Equal(t, "Welcome to room ABCD!", welcome.Text)
	assert.NotZero(t, welcome.Timestamp)

	join := joinNotice(sess)
	assert.Equal(t, "system-join-"+sess.ID, join.ID)
	assert.Equal(t, "bob joined the chat", join.Text)

	leave := leaveNotice(sess)
	assert.Equal(t, "system-left-"+sess.ID, leave.ID)
	assert.Equal(t, "bob left the chat", leave.Text)
}

func TestChatMessageCarriesOpaquePayload(t *testing.T) {
	sess := newSession("alice", "#f00", nil)

	msg := chatMessage(sess, "ciphertext-bytes", "iv-bytes")
	assert.True(t, strings.HasPrefix(msg.ID, sess.ID+"-"))
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "#f00", msg.SenderColor)
	assert.Equal(t, "ciphertext-bytes", msg.Ciphertext)
	assert.Equal(t, "iv-bytes", msg.IV)
	assert.Empty(t, msg.Text)
}

func TestSystemMessageOmitsCipherFields(t *testing.T) {
	data, err := encodeEvent(EventMessage, welcomeMessage("ABCD"))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "ciphertext")
	assert.NotContains(t, string(data), `"iv"`)
}

func TestUserMessageOmitsTextField(t *testing.T) {
	sess := newSession("alice", "#f00", nil)
	data, err := encodeEvent(EventMessage, chatMessage(sess, "c1", "i1"))
	require.NoError(t, err)

	assert.NotContains(t, string(data), `"text"`)
}
