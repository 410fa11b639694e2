// Package server coordinates room membership, message fan-out, and
// connection cleanup for the QuickChat relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub owns the room registry and orchestrates join, leave, and relay. Room
// mutations run on the calling connection's goroutine under that room's
// mutex; the hub's own lock only guards the connection set used for pushes
// and shutdown. There is deliberately no global lock across rooms.
type Hub struct {
	registry *Registry

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to accept connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   NewRegistry(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

var hub = NewHub()

// HasRoom reports whether a room with the given id currently exists. A room
// exists exactly while it has at least one member.
func (h *Hub) HasRoom(roomID string) bool {
	return h.registry.has(roomID)
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	return h.registry.count()
}

// Run starts the hub's connection lifecycle loop. It handles client
// registration and unregistration and should be called in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Connection from %s registered. Total connections: %d", client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel only after releasing the lock.
				close(client.send)
				log.Printf("Connection from %s unregistered. Total connections: %d", client.addr, clientCount)
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// Join admits the connection into the requested room, creating the room on
// first join. The joiner receives the current member snapshot (itself
// excluded) and a System welcome; everyone already present receives the
// userJoined event and a System join notice. A join on an already active
// connection is ignored: a session belongs to exactly one room for its life.
func (h *Hub) Join(c *Client, p JoinPayload) {
	if c.session != nil {
		log.Printf("Ignoring join from %s: already active in room %q", c.addr, c.room.ID())
		return
	}

	sess := newSession(p.Nickname, p.Color, c)
	for {
		room := h.registry.getOrCreate(p.RoomID)
		if h.admit(room, sess, c) {
			return
		}
		// The room was retired between lookup and admission; fetch a fresh one.
	}
}

func (h *Hub) admit(room *Room, sess *Session, c *Client) bool {
	room.mu.Lock()
	if room.retired {
		room.mu.Unlock()
		return false
	}

	others := room.snapshotLocked(sess.ID)
	room.addLocked(sess)
	c.session = sess
	c.room = room
	memberCount := room.sizeLocked()

	var failed []*Session

	users := make([]User, 0, len(others))
	for _, o := range others {
		users = append(users, o.user())
	}
	h.pushEvent(sess, EventCurrentUsers, users, &failed)
	h.pushEvent(sess, EventMessage, welcomeMessage(room.ID()), &failed)

	if len(others) > 0 {
		joined, errJoined := encodeEvent(EventUserJoined, sess.user())
		notice, errNotice := encodeEvent(EventMessage, joinNotice(sess))
		for _, o := range others {
			if errJoined == nil {
				h.push(o, joined, &failed)
			}
			if errNotice == nil {
				h.push(o, notice, &failed)
			}
		}
	}
	room.mu.Unlock()

	log.Printf("%s joined room %q as %q (session %s). Members: %d", c.addr, room.ID(), sess.Nickname, sess.ID, memberCount)
	h.evict(failed)
	return true
}

// Relay forwards an opaque encrypted payload to every current member of the
// room, the sender included: clients render their own messages from the
// server echo so all members share one message order. Unknown rooms and
// senders that already left are dropped silently.
func (h *Hub) Relay(c *Client, p ChatPayload) {
	room := h.registry.get(p.RoomID)
	if room == nil {
		return
	}
	sess := c.session
	if sess == nil {
		return
	}

	room.mu.Lock()
	sender, ok := room.memberLocked(sess.ID)
	if !ok {
		room.mu.Unlock()
		return
	}

	data, err := encodeEvent(EventMessage, chatMessage(sender, p.Ciphertext, p.IV))
	if err != nil {
		room.mu.Unlock()
		log.Printf("Failed to encode message from %s: %v", c.addr, err)
		return
	}

	var failed []*Session
	for _, member := range room.order {
		h.push(member, data, &failed)
	}
	room.mu.Unlock()

	h.evict(failed)
}

// Disconnect removes the connection's session from its room, notifies the
// remaining members, and hands the connection back for unregistration. It is
// idempotent: a second disconnect for the same connection is a no-op.
func (h *Hub) Disconnect(c *Client) {
	h.leaveRoom(c)

	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) leaveRoom(c *Client) {
	room, sess := c.room, c.session
	if room == nil || sess == nil {
		return
	}

	room.mu.Lock()
	if _, ok := room.removeLocked(sess.ID); !ok {
		room.mu.Unlock()
		return
	}

	empty := room.sizeLocked() == 0
	if empty {
		room.retired = true
	}

	var failed []*Session
	if !empty {
		left, errLeft := encodeEvent(EventUserLeft, UserLeftPayload{ID: sess.ID})
		notice, errNotice := encodeEvent(EventMessage, leaveNotice(sess))
		for _, member := range room.order {
			if errLeft == nil {
				h.push(member, left, &failed)
			}
			if errNotice == nil {
				h.push(member, notice, &failed)
			}
		}
	}
	room.mu.Unlock()

	log.Printf("%q (session %s) left room %q", sess.Nickname, sess.ID, room.ID())
	if empty {
		h.registry.remove(room.ID(), room)
		log.Printf("Room %q deleted (no users)", room.ID())
	}
	h.evict(failed)
}

func (h *Hub) pushEvent(target *Session, event string, payload any, failed *[]*Session) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", event, err)
		return
	}
	h.push(target, data, failed)
}

func (h *Hub) push(target *Session, data []byte, failed *[]*Session) {
	if !h.safeSend(target.client, data) {
		*failed = append(*failed, target)
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// The send channel may be closed by a concurrent unregister; the recover
	// above covers that window.
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// evict drops recipients whose outbound buffer could not accept a push. A
// slow or dead connection must never stall delivery to the rest of the room;
// closing the connection lets its own read pump run the normal leave path.
func (h *Hub) evict(failed []*Session) {
	for _, s := range failed {
		log.Printf("Evicting session %s from %s: send buffer full", s.ID, s.client.addr)
		if s.client.conn != nil {
			_ = s.client.conn.Close()
			continue
		}
		h.Disconnect(s.client)
	}
}

// shutdownClients closes every active connection.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops the hub and waits for the connection goroutines to finish,
// or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
