// Package server provides the room registry: the only map from room ids to
// live rooms. Rooms are created lazily on first join and removed the moment
// their last member leaves, so registry memory is bounded by active rooms.
package server

import "sync"

// Registry guards the room map with its own lock; per-room membership is
// serialized by each Room's mutex so rooms never block each other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// getOrCreate returns the room for id, creating it if absent. Concurrent
// first joins to the same id observe a single room instance. The returned
// room may already be retired; callers must re-fetch when admission fails.
func (reg *Registry) getOrCreate(id string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[id]
	if !ok {
		room = newRoom(id)
		reg.rooms[id] = room
	}
	return room
}

// get returns the room for id or nil. Unlike getOrCreate it never creates,
// so a message addressed to a dead room cannot resurrect it.
func (reg *Registry) get(id string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[id]
}

// remove deletes the entry for id only while it still maps to room. A fresh
// room that reused the id after a retire is left untouched. Removing an
// absent id is a no-op.
func (reg *Registry) remove(id string, room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.rooms[id] == room {
		delete(reg.rooms, id)
	}
}

func (reg *Registry) has(id string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.rooms[id]
	return ok
}

func (reg *Registry) count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
