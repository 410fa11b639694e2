// Package server models a Session: one connected client's identity inside
// one room, tied to the lifetime of its WebSocket connection.
package server

import "github.com/google/uuid"

// Session is the membership record for a single connection. The identity is
// fixed at join time and never mutated; nicknames are display strings and
// are deliberately not checked for uniqueness within a room.
type Session struct {
	ID       string
	Nickname string
	Color    string

	client *Client
}

func newSession(nickname, color string, c *Client) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Nickname: nickname,
		Color:    color,
		client:   c,
	}
}

func (s *Session) user() User {
	return User{ID: s.ID, Nickname: s.Nickname, Color: s.Color}
}
