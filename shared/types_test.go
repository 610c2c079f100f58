package shared

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUserRoom(t *testing.T) {
	if got := UserRoom("u1"); got != "user:u1" {
		t.Errorf("Expected user room 'user:u1', got %q", got)
	}
	if UserRoom("u1") == GlobalRoom {
		t.Error("User room must never collide with the global room")
	}
}

func TestNewEnvelope(t *testing.T) {
	msg := Message{
		ID:         "m1",
		Sender:     "u1",
		SenderName: "alice",
		Text:       "hello team",
		Recipients: []string{"u2", "u3"},
		ReadBy:     []string{"u1"},
		Encrypted:  true,
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	env := NewEnvelope(MessageEvent, msg)
	if env.Type != MessageEvent {
		t.Errorf("Expected type %q, got %q", MessageEvent, env.Type)
	}

	var decoded Message
	if err := json.Unmarshal(env.Data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal envelope data: %v", err)
	}
	if decoded.ID != msg.ID || decoded.Text != msg.Text || len(decoded.Recipients) != 2 {
		t.Errorf("Envelope payload mismatch: %+v", decoded)
	}
}

func TestEnvelopeJSONShape(t *testing.T) {
	env := NewEnvelope(JoinEvent, JoinRequest{Room: GlobalRoom})
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	var parsed struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("Failed to parse envelope JSON: %v", err)
	}
	if parsed.Type != "join" {
		t.Errorf("Expected wire type 'join', got %q", parsed.Type)
	}

	var join JoinRequest
	if err := json.Unmarshal(parsed.Data, &join); err != nil {
		t.Fatalf("Failed to parse join payload: %v", err)
	}
	if join.Room != GlobalRoom {
		t.Errorf("Expected room %q, got %q", GlobalRoom, join.Room)
	}
}
