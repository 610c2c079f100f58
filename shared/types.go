package shared

import (
	"encoding/json"
	"time"
)

// EventType distinguishes real-time events on the websocket channel.
type EventType string

const (
	// Client -> server
	JoinEvent EventType = "join"

	// Server -> client
	MessageEvent      EventType = "message"
	NotificationEvent EventType = "notification"
	UserListEvent     EventType = "userlist"
)

// GlobalRoom is the shared chat room every client may join. Per-user
// notification rooms are derived with UserRoom.
const GlobalRoom = "global"

// UserRoom returns the personal notification room for a user id.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Envelope wraps every event on the real-time channel.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an Envelope. All payloads are plain
// structs, so a marshal error degrades to an empty data field instead of
// failing the caller.
func NewEnvelope(t EventType, data interface{}) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("{}")
	}
	return Envelope{Type: t, Data: raw}
}

// JoinRequest is the payload of a client join event. Room is either
// GlobalRoom or the caller's own user room.
type JoinRequest struct {
	Room string `json:"room"`
}

// Message is a persisted chat message as exposed to clients. Text always
// carries the readable body; when Encrypted is set the stored ciphertext
// round-tripped successfully at read time.
type Message struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Recipients []string  `json:"recipients"`
	ReadBy     []string  `json:"readBy"`
	Encrypted  bool      `json:"encrypted"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Notification is pushed to a recipient's user room when a message
// addressed to them is created.
type Notification struct {
	Kind      string    `json:"kind"`
	MessageID string    `json:"messageId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserList is broadcast to the global room when membership changes.
type UserList struct {
	Users []string `json:"users"`
}
