package server

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/projectflow/flowchat/shared"
	_ "modernc.org/sqlite"
)

// messageCap bounds the number of retained messages; older ones are
// pruned on insert.
const messageCap = 1000

var (
	ErrEmptyMessage    = errors.New("message text must not be empty")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotRecipient    = errors.New("user is not a recipient of this message")
	ErrNotAllowed      = errors.New("operation not allowed")
	ErrUserExists      = errors.New("username already taken")
	ErrUserNotFound    = errors.New("user not found")
)

// User is a directory entry. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// Store persists messages, read markers and the user directory in
// SQLite. Message bodies are stored twice: plaintext, and the codec's
// ciphertext when encryption succeeded at write time.
type Store struct {
	db    *sql.DB
	codec *shared.Codec
}

// OpenStore opens (or creates) the database at path and prepares the
// schema.
func OpenStore(path string, codec *shared.Codec) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL mode for better concurrency between the HTTP handlers and
	// the websocket layer
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	_, _ = db.Exec("PRAGMA busy_timeout=5000;")
	_, _ = db.Exec("PRAGMA synchronous=NORMAL;")
	_, _ = db.Exec("PRAGMA foreign_keys=ON;")

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := NewStore(db, codec)
	if err := s.CreateSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStore wraps an already-open database handle.
func NewStore(db *sql.DB, codec *shared.Codec) *Store {
	return &Store{db: db, codec: codec}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping tests the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// CreateSchema creates the database schema.
func (s *Store) CreateSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		encrypted_text TEXT NOT NULL DEFAULT '',
		is_encrypted BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS message_recipients (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (message_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS message_reads (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		read_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (message_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	CREATE INDEX IF NOT EXISTS idx_message_recipients_user ON message_recipients(user_id);
	CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateUser adds a user to the directory. Usernames are unique
// case-insensitively.
func (s *Store) CreateUser(username, passwordHash, role string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username must not be empty")
	}
	if role == "" {
		role = "member"
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.Exec(`INSERT INTO users (id, username, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// UserByUsername resolves a directory entry by name (case-insensitive).
func (s *Store) UserByUsername(username string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ? COLLATE NOCASE`, username))
}

// UserByID resolves a directory entry by id.
func (s *Store) UserByID(id string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUserIDsExcept returns every user id in the directory except the
// given one.
func (s *Store) ListUserIDsExcept(userID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM users WHERE id != ? ORDER BY username`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateMessage validates and persists a new message. Recipients are
// snapshotted as the full directory minus the sender at the moment of
// the call; the sender is seeded into the read set. Encryption failure
// is not fatal, the message is simply stored unencrypted.
func (s *Store) CreateMessage(senderID, text string) (*shared.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	sender, err := s.UserByID(senderID)
	if err != nil {
		return nil, err
	}

	recipients, err := s.ListUserIDsExcept(senderID)
	if err != nil {
		return nil, err
	}

	encryptedText := ""
	isEncrypted := false
	if ct, err := s.codec.Encrypt(text); err == nil {
		encryptedText = ct
		isEncrypted = true
	} else {
		StoreLogger.Warn("Message encryption failed, storing plaintext only", map[string]interface{}{"error": err.Error()})
	}

	msg := &shared.Message{
		ID:         uuid.NewString(),
		Sender:     sender.ID,
		SenderName: sender.Username,
		Text:       text,
		Recipients: recipients,
		ReadBy:     []string{sender.ID},
		Encrypted:  isEncrypted,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO messages (id, sender, text, encrypted_text, is_encrypted, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Text, encryptedText, isEncrypted, msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, rid := range recipients {
		if _, err := tx.Exec(`INSERT INTO message_recipients (message_id, user_id) VALUES (?, ?)`, msg.ID, rid); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(`INSERT INTO message_reads (message_id, user_id) VALUES (?, ?)`, msg.ID, msg.Sender); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.pruneMessages()
	return msg, nil
}

// pruneMessages enforces the retention cap and drops orphaned
// recipient/read rows. Best effort; failures only log.
func (s *Store) pruneMessages() {
	_, err := s.db.Exec(`DELETE FROM messages WHERE id NOT IN (SELECT id FROM messages ORDER BY created_at DESC, rowid DESC LIMIT ?)`, messageCap)
	if err != nil {
		StoreLogger.Warn("Failed to enforce message cap", map[string]interface{}{"error": err.Error()})
		return
	}
	_, _ = s.db.Exec(`DELETE FROM message_recipients WHERE message_id NOT IN (SELECT id FROM messages)`)
	_, _ = s.db.Exec(`DELETE FROM message_reads WHERE message_id NOT IN (SELECT id FROM messages)`)
}

// RecentMessages returns at most limit messages, newest first. Listing
// has a read-on-view side effect: the viewer is added to the read set of
// every returned message addressed to them.
func (s *Store) RecentMessages(viewerID string, limit int) ([]shared.Message, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.sender, u.username, m.text, m.encrypted_text, m.is_encrypted, m.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender
		ORDER BY m.created_at DESC, m.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []shared.Message
	for rows.Next() {
		var msg shared.Message
		var senderName sql.NullString
		var encryptedText string
		if err := rows.Scan(&msg.ID, &msg.Sender, &senderName, &msg.Text, &encryptedText, &msg.Encrypted, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.SenderName = senderName.String
		if msg.Encrypted {
			if plaintext, err := s.codec.Decrypt(encryptedText); err == nil {
				msg.Text = plaintext
			} else {
				// Fall back to the stored plaintext copy
				StoreLogger.Warn("Message decryption failed, using plaintext fallback", map[string]interface{}{"message_id": msg.ID})
				msg.Encrypted = false
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range messages {
		if err := s.loadMarkers(&messages[i]); err != nil {
			return nil, err
		}
	}

	// Read-on-view: listing marks every returned message read for the
	// viewer, when the viewer is among its recipients.
	for i := range messages {
		msg := &messages[i]
		if !contains(msg.Recipients, viewerID) || contains(msg.ReadBy, viewerID) {
			continue
		}
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`, msg.ID, viewerID); err != nil {
			return nil, err
		}
		msg.ReadBy = append(msg.ReadBy, viewerID)
	}

	return messages, nil
}

// loadMarkers fills a message's recipient and read sets.
func (s *Store) loadMarkers(msg *shared.Message) error {
	var err error
	msg.Recipients, err = s.idList(`SELECT user_id FROM message_recipients WHERE message_id = ? ORDER BY user_id`, msg.ID)
	if err != nil {
		return err
	}
	msg.ReadBy, err = s.idList(`SELECT user_id FROM message_reads WHERE message_id = ? ORDER BY user_id`, msg.ID)
	return err
}

func (s *Store) idList(query, arg string) ([]string, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkRead adds userID to the read set of one message. Idempotent; only
// recipients may acknowledge.
func (s *Store) MarkRead(messageID, userID string) error {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE id = ?`, messageID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrMessageNotFound
	}

	var isRecipient int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM message_recipients WHERE message_id = ? AND user_id = ?`, messageID, userID).Scan(&isRecipient)
	if err != nil {
		return err
	}
	if isRecipient == 0 {
		return ErrNotRecipient
	}

	_, err = s.db.Exec(`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`, messageID, userID)
	return err
}

// CountUnread returns the number of messages addressed to userID that
// they have not yet read.
func (s *Store) CountUnread(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM message_recipients r
		WHERE r.user_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads mr
			WHERE mr.message_id = r.message_id AND mr.user_id = r.user_id
		  )`, userID).Scan(&count)
	return count, err
}

// DeleteMessage removes a message outright. Only the sender or an admin
// may delete; there are no cascading effects beyond the message's own
// recipient/read rows.
func (s *Store) DeleteMessage(messageID, requesterID string, requesterIsAdmin bool) error {
	var sender string
	err := s.db.QueryRow(`SELECT sender FROM messages WHERE id = ?`, messageID).Scan(&sender)
	if err == sql.ErrNoRows {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}

	if sender != requesterID && !requesterIsAdmin {
		return ErrNotAllowed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, messageID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM message_recipients WHERE message_id = ?`, messageID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM message_reads WHERE message_id = ?`, messageID); err != nil {
		return err
	}

	return tx.Commit()
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
