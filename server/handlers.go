package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/projectflow/flowchat/config"
	"github.com/projectflow/flowchat/shared"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Router serves the message API and the real-time channel.
type Router struct {
	*mux.Router
	store *Store
	hub   *Hub
	cfg   *config.Config
}

// NewRouter wires all routes.
func NewRouter(store *Store, hub *Hub, cfg *config.Config) *Router {
	rt := &Router{
		Router: mux.NewRouter(),
		store:  store,
		hub:    hub,
		cfg:    cfg,
	}

	rt.HandleFunc("/healthz", rt.handleHealth).Methods("GET")
	rt.HandleFunc("/ws", rt.handleWebSocket).Methods("GET")

	auth := rt.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/register", rt.handleRegister).Methods("POST")
	auth.HandleFunc("/login", rt.handleLogin).Methods("POST")

	api := rt.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(cfg.JWTSecret))
	api.HandleFunc("/config", rt.handleClientConfig).Methods("GET")
	api.HandleFunc("/messages", rt.handleListMessages).Methods("GET")
	api.HandleFunc("/messages", rt.handleCreateMessage).Methods("POST")
	api.HandleFunc("/messages/unread", rt.handleUnreadCount).Methods("GET")
	api.HandleFunc("/messages/{id}/read", rt.handleMarkRead).Methods("PUT")
	api.HandleFunc("/messages/{id}", rt.handleDeleteMessage).Methods("DELETE")

	return rt
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if creds.Username == "" || creds.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	user, err := rt.store.CreateUser(creds.Username, hash, "member")
	if err == ErrUserExists {
		respondError(w, http.StatusConflict, "Username already taken")
		return
	}
	if err != nil {
		ServerLogger.Error("Failed to create user", err)
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	token, err := GenerateToken(user, rt.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	respondJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := rt.store.UserByUsername(creds.Username)
	if err == ErrUserNotFound || (err == nil && !CheckPasswordHash(creds.Password, user.PasswordHash)) {
		AuthLogger.Warn("Failed login attempt", map[string]interface{}{"username": creds.Username})
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		ServerLogger.Error("Login lookup failed", err)
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	token, err := GenerateToken(user, rt.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

// handleClientConfig exposes the knobs clients need for the pull
// fallback, so the poll interval is configuration rather than a constant
// baked into every client.
func (rt *Router) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"unreadPollSeconds": int(rt.cfg.UnreadPollInterval.Seconds()),
		"historyLimit":      rt.cfg.HistoryLimit,
	})
}

func (rt *Router) handleListMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	messages, err := rt.store.RecentMessages(identity.UserID, rt.cfg.HistoryLimit)
	if err != nil {
		ServerLogger.Error("Failed to list messages", err)
		respondError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []shared.Message{}
	}
	respondJSON(w, http.StatusOK, messages)
}

func (rt *Router) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	count, err := rt.store.CountUnread(identity.UserID)
	if err != nil {
		ServerLogger.Error("Failed to count unread messages", err)
		respondError(w, http.StatusInternalServerError, "Failed to count unread messages")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

// handleCreateMessage is the send path: validate, persist, then fan out.
// Persistence happens over this request/response path so a message
// survives even when the real-time channel is down; delivery is best
// effort on top.
func (rt *Router) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := rt.store.CreateMessage(identity.UserID, body.Text)
	if err == ErrEmptyMessage {
		respondError(w, http.StatusBadRequest, "Message text must not be empty")
		return
	}
	if err == ErrUserNotFound {
		respondError(w, http.StatusUnauthorized, "Unknown sender")
		return
	}
	if err != nil {
		ServerLogger.Error("Failed to create message", err)
		respondError(w, http.StatusInternalServerError, "Failed to create message")
		return
	}

	rt.hub.Broadcast(shared.GlobalRoom, shared.NewEnvelope(shared.MessageEvent, msg), nil)

	notification := shared.Notification{
		Kind:      "new_message",
		MessageID: msg.ID,
		Sender:    msg.SenderName,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
	for _, rid := range msg.Recipients {
		rt.hub.NotifyUser(rid, shared.NewEnvelope(shared.NotificationEvent, notification))
	}

	respondJSON(w, http.StatusCreated, msg)
}

func (rt *Router) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	messageID := mux.Vars(r)["id"]
	err := rt.store.MarkRead(messageID, identity.UserID)
	switch err {
	case nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
	case ErrMessageNotFound:
		respondError(w, http.StatusNotFound, "Message not found")
	case ErrNotRecipient:
		respondError(w, http.StatusForbidden, "Not a recipient of this message")
	default:
		ServerLogger.Error("Failed to mark message read", err)
		respondError(w, http.StatusInternalServerError, "Failed to mark message read")
	}
}

func (rt *Router) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	messageID := mux.Vars(r)["id"]
	err := rt.store.DeleteMessage(messageID, identity.UserID, identity.IsAdmin())
	switch err {
	case nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	case ErrMessageNotFound:
		respondError(w, http.StatusNotFound, "Message not found")
	case ErrNotAllowed:
		respondError(w, http.StatusForbidden, "Only the sender or an admin may delete a message")
	default:
		ServerLogger.Error("Failed to delete message", err)
		respondError(w, http.StatusInternalServerError, "Failed to delete message")
	}
}

// handleWebSocket upgrades the connection and starts the pumps. The
// token travels as a query parameter because browsers cannot set
// headers on websocket upgrades.
func (rt *Router) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := ValidateToken(r.URL.Query().Get("token"), rt.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ServerLogger.Error("WebSocket upgrade failed", err)
		return
	}

	client := &Client{
		hub:      rt.hub,
		conn:     conn,
		send:     make(chan shared.Envelope, 256),
		userID:   identity.UserID,
		username: identity.Username,
	}
	rt.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
