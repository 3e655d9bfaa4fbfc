// Package chat provides buyer/seller conversations, messages and notifications.
package chat

import (
	"errors"
	"time"
)

var (
	// ErrConversationNotFound is returned when a conversation does not exist or the caller is not a member.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when a message is blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrOwnService is returned when a seller tries to open a chat on their own service.
	ErrOwnService = errors.New("cannot chat about your own service")
)

// Conversation is the thread between one buyer and the seller of one service.
// There is at most one conversation per (ServiceID, BuyerID).
type Conversation struct {
	ID        int64     `json:"id"`
	ServiceID int64     `json:"service_id"`
	BuyerID   int64     `json:"buyer_id"`
	SellerID  int64     `json:"seller_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether userID is the buyer or the seller.
func (c *Conversation) HasMember(userID int64) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// OtherParty returns the member that is not userID.
func (c *Conversation) OtherParty(userID int64) int64 {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// Message is a single chat message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Body           string    `json:"message"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"timestamp"`
}

// Notification tells a user something happened, such as a new message.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is a conversation with its latest message and the caller's unread count.
type Summary struct {
	Conversation Conversation
	LastMessage  *Message
	UnreadCount  int
}

// InboxEntry is one row of a user's inbox.
type InboxEntry struct {
	ConversationID int64      `json:"conversation_id"`
	ServiceID      int64      `json:"service_id"`
	ServiceTitle   string     `json:"service_title"`
	OtherParty     string     `json:"other_party"`
	LastMessage    string     `json:"last_message"`
	LastTimestamp  *time.Time `json:"last_timestamp"`
	UnreadCount    int        `json:"unread_count"`
}

// activity returns the time used to order summaries, newest first.
func (s *Summary) activity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.Conversation.CreatedAt
}
