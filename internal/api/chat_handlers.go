package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/onnwee/freelancehub/internal/chat"
	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
)

// ChatHandlers serves conversations, messages, inboxes and notifications.
type ChatHandlers struct {
	chat     *chat.Service
	hub      *chat.Hub
	upgrader websocket.Upgrader
}

// NewChatHandlers creates the chat handlers. Websocket upgrades are accepted from
// allowedOrigins, or from the same origin when the list is empty.
func NewChatHandlers(svc *chat.Service, hub *chat.Hub, allowedOrigins []string) *ChatHandlers {
	h := &ChatHandlers{
		chat: svc,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

// ConversationResponse is a conversation with its messages, oldest first.
type ConversationResponse struct {
	Conversation *chat.Conversation `json:"conversation"`
	Messages     []chat.Message     `json:"messages"`
}

// SendMessageRequest is the body of POST /conversations/{id}/messages.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// writeChatError maps chat errors to responses.
func writeChatError(w http.ResponseWriter, r *http.Request, err error, action string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
	case errors.Is(err, listing.ErrServiceNotFound):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Service not found")
	case errors.Is(err, chat.ErrOwnService):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "You cannot chat about your own service")
	case errors.Is(err, chat.ErrEmptyMessage):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Message cannot be empty")
	default:
		slog.ErrorContext(ctx, "chat request failed", "action", action, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to "+action)
	}
}

// Open handles POST /chat/{serviceID}: the caller's conversation with the seller, created on first contact.
func (h *ChatHandlers) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceID, ok := pathID(w, r, "serviceID")
	if !ok {
		return
	}

	conv, msgs, err := h.chat.Open(ctx, serviceID, middleware.GetUserID(ctx))
	if err != nil {
		writeChatError(w, r, err, "open conversation")
		return
	}
	writeJSON(w, ctx, http.StatusOK, ConversationResponse{Conversation: conv, Messages: nonNil(msgs)})
}

// Messages handles GET /conversations/{id}/messages and marks the other party's messages read.
func (h *ChatHandlers) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	msgs, err := h.chat.Messages(ctx, id, middleware.GetUserID(ctx))
	if err != nil {
		writeChatError(w, r, err, "load messages")
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]any{"messages": nonNil(msgs)})
}

// Send handles POST /conversations/{id}/messages.
func (h *ChatHandlers) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	msg, err := h.chat.Send(ctx, id, middleware.GetUserID(ctx), req.Message)
	if err != nil {
		writeChatError(w, r, err, "send message")
		return
	}
	writeJSON(w, ctx, http.StatusCreated, msg)
}

// Inbox handles GET /inbox: every conversation of the caller, newest activity first.
func (h *ChatHandlers) Inbox(w http.ResponseWriter, r *http.Request) {
	h.inbox(w, r, 0)
}

// Recent handles GET /api/conversations: the inbox capped at chat.DefaultRecentLimit.
func (h *ChatHandlers) Recent(w http.ResponseWriter, r *http.Request) {
	h.inbox(w, r, chat.DefaultRecentLimit)
}

func (h *ChatHandlers) inbox(w http.ResponseWriter, r *http.Request, limit int) {
	ctx := r.Context()
	entries, unread, err := h.chat.Inbox(ctx, middleware.GetUserID(ctx), limit)
	if err != nil {
		writeChatError(w, r, err, "load inbox")
		return
	}
	writeJSON(w, ctx, http.StatusOK, InboxResponse{Conversations: entries, TotalUnread: unread})
}

// Notifications handles GET /notifications, newest first.
func (h *ChatHandlers) Notifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notes, err := h.chat.Notifications(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeChatError(w, r, err, "load notifications")
		return
	}
	if notes == nil {
		notes = []chat.Notification{}
	}
	writeJSON(w, ctx, http.StatusOK, map[string]any{"notifications": notes})
}

// Subscribe handles GET /conversations/{id}/ws. Members receive every new message
// of the conversation as a JSON text frame until they disconnect.
func (h *ChatHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.chat.Member(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeChatError(w, r, err, "subscribe")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(ctx, "failed to upgrade websocket connection", "error", err, "conversation_id", id)
		return
	}

	h.hub.Subscribe(id, conn)
	slog.InfoContext(ctx, "websocket client subscribed", "conversation_id", id)

	defer func() {
		h.hub.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed", "conversation_id", id)
	}()

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly", "error", err, "conversation_id", id)
			}
			return
		}
	}
}

func nonNil(msgs []chat.Message) []chat.Message {
	if msgs == nil {
		return []chat.Message{}
	}
	return msgs
}
