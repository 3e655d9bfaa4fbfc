package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists conversations, messages and notifications.
type Repository interface {
	// GetOrCreateConversation returns the conversation for (serviceID, buyerID), creating it if needed.
	GetOrCreateConversation(ctx context.Context, serviceID, buyerID, sellerID int64) (*Conversation, error)
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	// ListMessages returns a conversation's messages, oldest first.
	ListMessages(ctx context.Context, conversationID int64) ([]Message, error)
	// MarkRead marks messages not sent by readerID as read and returns how many changed.
	MarkRead(ctx context.Context, conversationID, readerID int64) (int, error)
	// AddMessage stores msg and, when n is not nil, the recipient's notification.
	AddMessage(ctx context.Context, msg *Message, n *Notification) error
	// ListSummaries returns the user's conversations, most recent activity first.
	ListSummaries(ctx context.Context, userID int64) ([]Summary, error)
	// SellerUnreadCount counts unread messages from buyers across the seller's conversations.
	SellerUnreadCount(ctx context.Context, sellerID int64) (int, error)
	// ListNotifications returns the user's notifications, newest first.
	ListNotifications(ctx context.Context, userID int64) ([]Notification, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu            sync.RWMutex
	conversations map[int64]*Conversation
	byPair        map[[2]int64]int64
	messages      map[int64][]*Message
	notifications []*Notification
	nextConvID    int64
	nextMsgID     int64
	nextNotifID   int64
	now           func() time.Time
}

// NewInMemoryRepository creates a new in-memory chat repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		conversations: make(map[int64]*Conversation),
		byPair:        make(map[[2]int64]int64),
		messages:      make(map[int64][]*Message),
		nextConvID:    1,
		nextMsgID:     1,
		nextNotifID:   1,
		now:           time.Now,
	}
}

// GetOrCreateConversation returns the existing conversation or creates one.
func (r *InMemoryRepository) GetOrCreateConversation(ctx context.Context, serviceID, buyerID, sellerID int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := [2]int64{serviceID, buyerID}
	if id, ok := r.byPair[key]; ok {
		c := *r.conversations[id]
		return &c, nil
	}

	c := &Conversation{
		ID:        r.nextConvID,
		ServiceID: serviceID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: r.now(),
	}
	r.nextConvID++
	r.conversations[c.ID] = c
	r.byPair[key] = c.ID

	copied := *c
	return &copied, nil
}

// GetConversation returns a copy of the conversation.
func (r *InMemoryRepository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	copied := *c
	return &copied, nil
}

// ListMessages returns copies of the conversation's messages in send order.
func (r *InMemoryRepository) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}
	msgs := r.messages[conversationID]
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out, nil
}

// MarkRead marks the other party's messages as read.
func (r *InMemoryRepository) MarkRead(ctx context.Context, conversationID, readerID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return 0, ErrConversationNotFound
	}
	n := 0
	for _, m := range r.messages[conversationID] {
		if m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

// AddMessage stores the message and optional notification together.
func (r *InMemoryRepository) AddMessage(ctx context.Context, msg *Message, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[msg.ConversationID]; !ok {
		return ErrConversationNotFound
	}

	now := r.now()
	msg.ID = r.nextMsgID
	msg.CreatedAt = now
	msg.IsRead = false
	r.nextMsgID++
	stored := *msg
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], &stored)

	if n != nil {
		n.ID = r.nextNotifID
		n.CreatedAt = now
		n.IsRead = false
		r.nextNotifID++
		copied := *n
		r.notifications = append(r.notifications, &copied)
	}
	return nil
}

// ListSummaries returns the user's conversations ordered by latest activity.
func (r *InMemoryRepository) ListSummaries(ctx context.Context, userID int64) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0)
	for _, c := range r.conversations {
		if !c.HasMember(userID) {
			continue
		}
		s := Summary{Conversation: *c}
		msgs := r.messages[c.ID]
		if len(msgs) > 0 {
			last := *msgs[len(msgs)-1]
			s.LastMessage = &last
		}
		for _, m := range msgs {
			if m.SenderID != userID && !m.IsRead {
				s.UnreadCount++
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].activity(), out[j].activity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].Conversation.ID > out[j].Conversation.ID
	})
	return out, nil
}

// SellerUnreadCount counts unread buyer messages in the seller's conversations.
func (r *InMemoryRepository) SellerUnreadCount(ctx context.Context, sellerID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.conversations {
		if c.SellerID != sellerID {
			continue
		}
		for _, m := range r.messages[c.ID] {
			if m.SenderID != sellerID && !m.IsRead {
				n++
			}
		}
	}
	return n, nil
}

// ListNotifications returns the user's notifications, newest first.
func (r *InMemoryRepository) ListNotifications(ctx context.Context, userID int64) ([]Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Notification, 0)
	for i := len(r.notifications) - 1; i >= 0; i-- {
		if n := r.notifications[i]; n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}
