// Package server holds the Room type: a named group of sessions with a
// join-ordered member set guarded by a per-room mutex.
package server

import "sync"

// Room tracks the members of one room id. All membership access goes through
// the hub while holding mu; methods with the Locked suffix assume the caller
// already holds it. Once retired is set the room accepts no new members and
// joins must fetch a fresh room from the registry.
type Room struct {
	id string

	mu      sync.Mutex
	members map[string]*Session
	order   []*Session
	retired bool
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[string]*Session),
	}
}

// ID returns the client-chosen room identifier. Room ids are case-sensitive.
func (r *Room) ID() string {
	return r.id
}

func (r *Room) addLocked(s *Session) {
	r.members[s.ID] = s
	r.order = append(r.order, s)
}

// removeLocked deletes the session and reports whether it was a member.
// Removing an absent session is the duplicate-disconnect no-op case.
func (r *Room) removeLocked(sessionID string) (*Session, bool) {
	s, ok := r.members[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.members, sessionID)
	for i, m := range r.order {
		if m.ID == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, true
}

func (r *Room) memberLocked(sessionID string) (*Session, bool) {
	s, ok := r.members[sessionID]
	return s, ok
}

// snapshotLocked returns the members in join order, excluding the given
// session id. It copies the slice so the caller may release the lock.
func (r *Room) snapshotLocked(excludeID string) []*Session {
	snapshot := make([]*Session, 0, len(r.order))
	for _, s := range r.order {
		if s.ID == excludeID {
			continue
		}
		snapshot = append(snapshot, s)
	}
	return snapshot
}

func (r *Room) sizeLocked() int {
	return len(r.members)
}
