package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/projectflow/flowchat/shared"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum event size allowed from peer. Join events are tiny;
	// message bodies travel over the HTTP API, not this channel.
	maxEventSize = 4 * 1024
)

// Client is the middleman between one websocket connection and the hub.
// Identity is fixed at upgrade time by the auth collaborator; room
// membership is driven by explicit join events.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan shared.Envelope
	userID   string
	username string
}

// readPump consumes join events until the connection drops, then tears
// down all room membership.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxEventSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env shared.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ClientLogger.WithUser(c.userID).Warn("Read error", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		if env.Type != shared.JoinEvent {
			ClientLogger.WithUser(c.userID).Debug("Ignoring unexpected event", map[string]interface{}{"type": string(env.Type)})
			continue
		}

		var join shared.JoinRequest
		if err := json.Unmarshal(env.Data, &join); err != nil {
			continue
		}
		switch join.Room {
		case shared.GlobalRoom:
			c.hub.Join(c, shared.GlobalRoom)
		case shared.UserRoom(c.userID):
			// A connection may only join its own user room
			c.hub.Join(c, shared.UserRoom(c.userID))
		default:
			ClientLogger.WithUser(c.userID).Warn("Refusing join to foreign room", map[string]interface{}{"room": join.Room})
		}
	}
}

// writePump forwards hub events to the peer and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
