package server

import (
	"database/sql"
	"testing"

	"github.com/projectflow/flowchat/shared"
	_ "modernc.org/sqlite"
)

// createTestStore creates an in-memory store with the schema prepared.
func createTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	codec, err := shared.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("Failed to create test codec: %v", err)
	}

	store := NewStore(db, codec)
	if err := store.CreateSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return store
}

// createTestUser adds a directory entry with a throwaway password hash.
func createTestUser(t *testing.T, store *Store, username, role string) *User {
	t.Helper()

	user, err := store.CreateUser(username, "test-hash", role)
	if err != nil {
		t.Fatalf("Failed to create test user %s: %v", username, err)
	}
	return user
}
