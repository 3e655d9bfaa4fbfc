package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/user"
)

// DefaultRecentLimit caps the compact conversation list.
const DefaultRecentLimit = 10

// UserLookup resolves usernames.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// ServiceLookup resolves services.
type ServiceLookup interface {
	GetByID(ctx context.Context, id int64) (*listing.Service, error)
}

// Service implements the chat workflows on top of a Repository.
type Service struct {
	repo     Repository
	users    UserLookup
	services ServiceLookup
	hub      *Hub
}

// NewService creates a chat Service. hub may be nil.
func NewService(repo Repository, users UserLookup, services ServiceLookup, hub *Hub) *Service {
	return &Service{repo: repo, users: users, services: services, hub: hub}
}

// Open returns the caller's conversation about a service, creating it on first contact,
// and marks the seller's messages read.
func (s *Service) Open(ctx context.Context, serviceID, buyerID int64) (*Conversation, []Message, error) {
	svc, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}
	if svc.OwnerID == buyerID {
		return nil, nil, ErrOwnService
	}

	conv, err := s.repo.GetOrCreateConversation(ctx, serviceID, buyerID, svc.OwnerID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.read(ctx, conv, buyerID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// Member returns the conversation if userID belongs to it.
// Non-members get ErrConversationNotFound.
func (s *Service) Member(ctx context.Context, conversationID, userID int64) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(userID) {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// Messages marks the other party's messages read and returns the thread, oldest first.
func (s *Service) Messages(ctx context.Context, conversationID, userID int64) ([]Message, error) {
	conv, err := s.Member(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, conv, userID)
}

func (s *Service) read(ctx context.Context, conv *Conversation, readerID int64) ([]Message, error) {
	if _, err := s.repo.MarkRead(ctx, conv.ID, readerID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conv.ID)
}

// Send stores a message, notifies the recipient and pushes the message to live subscribers.
func (s *Service) Send(ctx context.Context, conversationID, senderID int64, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.Member(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sender: %w", err)
	}

	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		SenderUsername: sender.Username,
		Body:           body,
	}
	n := &Notification{
		UserID:  conv.OtherParty(senderID),
		Message: "New message from " + sender.Username,
	}
	if err := s.repo.AddMessage(ctx, msg, n); err != nil {
		return nil, err
	}

	s.hub.Broadcast(msg)
	return msg, nil
}

// Inbox lists the user's conversations, newest activity first, and the total unread count.
// limit <= 0 returns every conversation; the total always covers all of them.
func (s *Service) Inbox(ctx context.Context, userID int64, limit int) ([]InboxEntry, int, error) {
	return s.inbox(ctx, userID, limit, false)
}

// SellerInbox is Inbox restricted to conversations about the user's own services.
func (s *Service) SellerInbox(ctx context.Context, userID int64) ([]InboxEntry, int, error) {
	return s.inbox(ctx, userID, 0, true)
}

func (s *Service) inbox(ctx context.Context, userID int64, limit int, sellerOnly bool) ([]InboxEntry, int, error) {
	all, err := s.repo.ListSummaries(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	summaries := all[:0:0]
	total := 0
	for _, sum := range all {
		if sellerOnly && sum.Conversation.SellerID != userID {
			continue
		}
		summaries = append(summaries, sum)
		total += sum.UnreadCount
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}

	entries := make([]InboxEntry, 0, len(summaries))
	for _, sum := range summaries {
		conv := sum.Conversation
		entry := InboxEntry{
			ConversationID: conv.ID,
			ServiceID:      conv.ServiceID,
			UnreadCount:    sum.UnreadCount,
		}

		if svc, err := s.services.GetByID(ctx, conv.ServiceID); err == nil {
			entry.ServiceTitle = svc.Title
		} else if !errors.Is(err, listing.ErrServiceNotFound) {
			return nil, 0, err
		}

		other, err := s.users.GetByID(ctx, conv.OtherParty(userID))
		switch {
		case err == nil:
			entry.OtherParty = other.Username
		case errors.Is(err, user.ErrUserNotFound):
			slog.WarnContext(ctx, "conversation member missing", "conversation_id", conv.ID)
		default:
			return nil, 0, err
		}

		if sum.LastMessage != nil {
			entry.LastMessage = sum.LastMessage.Body
			ts := sum.LastMessage.CreatedAt
			entry.LastTimestamp = &ts
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

// SellerUnreadCount counts unread buyer messages for a seller.
func (s *Service) SellerUnreadCount(ctx context.Context, sellerID int64) (int, error) {
	return s.repo.SellerUnreadCount(ctx, sellerID)
}

// Notifications returns the user's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, userID int64) ([]Notification, error) {
	return s.repo.ListNotifications(ctx, userID)
}
