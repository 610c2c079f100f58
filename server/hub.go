package server

import (
	"sort"
	"sync"

	"github.com/projectflow/flowchat/shared"
)

// Hub owns the live-connection registry: which clients exist and which
// rooms they have joined. The registry is purely in-process state and
// starts empty on every boot; clients must re-join their rooms after
// reconnecting.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]bool
	clients map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]bool),
		clients: make(map[*Client]bool),
	}
}

// Register tracks a new connection. The connection belongs to no rooms
// until it sends join events.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	HubLogger.WithUser(c.userID).Info("Client connected")
	h.broadcastUserList()
}

// Unregister removes a connection from every room it had joined and
// closes its send channel. Safe to call once per client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room, members := range h.rooms {
		if members[c] {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
	h.mu.Unlock()
	HubLogger.WithUser(c.userID).Info("Client disconnected")
	h.broadcastUserList()
}

// Join adds a registered connection to a room. Idempotent; joining an
// unknown (unregistered) client is a no-op.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
}

// InRoom reports whether the connection is currently a member of room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[room][c]
}

// RoomSize returns the current number of members in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers an event to every member of room except the
// optional excluded connection. A member whose send buffer is full is
// dropped rather than allowed to stall the others.
func (h *Hub) Broadcast(room string, event shared.Envelope, exclude *Client) {
	var stalled []*Client

	h.mu.RLock()
	for c := range h.rooms[room] {
		if c == exclude {
			continue
		}
		select {
		case c.send <- event:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		HubLogger.WithUser(c.userID).Warn("Dropping client due to full send channel")
		h.Unregister(c)
	}
}

// NotifyUser delivers an event to the user's personal room. Users who
// have no live connection, or whose connections never joined their user
// room, simply miss the push; the client's periodic unread pull is the
// fallback.
func (h *Hub) NotifyUser(userID string, event shared.Envelope) {
	h.Broadcast(shared.UserRoom(userID), event, nil)
}

// broadcastUserList pushes the connected usernames to the global room.
func (h *Hub) broadcastUserList() {
	h.mu.RLock()
	seen := make(map[string]bool)
	usernames := []string{}
	for c := range h.clients {
		if c.username != "" && !seen[c.username] {
			seen[c.username] = true
			usernames = append(usernames, c.username)
		}
	}
	h.mu.RUnlock()

	sort.Strings(usernames)
	h.Broadcast(shared.GlobalRoom, shared.NewEnvelope(shared.UserListEvent, shared.UserList{Users: usernames}), nil)
}
