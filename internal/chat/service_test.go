package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/user"
)

type fixture struct {
	svc      *Service
	repo     *InMemoryRepository
	users    *user.InMemoryRepository
	services *listing.InMemoryRepository
	seller   *user.User
	buyer    *user.User
	other    *user.User
	offer    *listing.Service
}

// newFixture builds a chat service with one seller offering one service.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	users := user.NewInMemoryRepository()
	services := listing.NewInMemoryRepository(users)
	repo := NewInMemoryRepository()

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	f := &fixture{repo: repo, users: users, services: services}
	f.seller = &user.User{Username: "sally"}
	f.buyer = &user.User{Username: "bob"}
	f.other = &user.User{Username: "eve"}
	for _, u := range []*user.User{f.seller, f.buyer, f.other} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	f.offer = &listing.Service{OwnerID: f.seller.ID, Title: "Logo design", Description: "Logos", Price: 40}
	if err := services.Insert(ctx, f.offer); err != nil {
		t.Fatalf("insert service: %v", err)
	}
	f.svc = NewService(repo, users, services, NewHub())
	return f
}

// TestService_Open tests get-or-create semantics and the own-service rule.
func TestService_Open(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, msgs, err := f.svc.Open(ctx, f.offer.ID, f.buyer.ID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if conv.BuyerID != f.buyer.ID || conv.SellerID != f.seller.ID || conv.ServiceID != f.offer.ID {
		t.Errorf("unexpected conversation %+v", conv)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}

	again, _, err := f.svc.Open(ctx, f.offer.ID, f.buyer.ID)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	if again.ID != conv.ID {
		t.Errorf("expected same conversation, got %d and %d", conv.ID, again.ID)
	}

	if _, _, err := f.svc.Open(ctx, f.offer.ID, f.seller.ID); !errors.Is(err, ErrOwnService) {
		t.Errorf("expected ErrOwnService, got %v", err)
	}
	if _, _, err := f.svc.Open(ctx, 999, f.buyer.ID); !errors.Is(err, listing.ErrServiceNotFound) {
		t.Errorf("expected ErrServiceNotFound, got %v", err)
	}
}

// TestService_Send tests trimming, membership and notifications.
func TestService_Send(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _, _ := f.svc.Open(ctx, f.offer.ID, f.buyer.ID)

	msg, err := f.svc.Send(ctx, conv.ID, f.buyer.ID, "  Hi, are you available?  ")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Body != "Hi, are you available?" || msg.SenderUsername != "bob" || msg.ID == 0 {
		t.Errorf("unexpected message %+v", msg)
	}

	notes, err := f.svc.Notifications(ctx, f.seller.ID)
	if err != nil {
		t.Fatalf("Notifications failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Message != "New message from bob" {
		t.Errorf("unexpected notifications %+v", notes)
	}

	tests := []struct {
		name   string
		sender int64
		body   string
		want   error
	}{
		{"blank", f.buyer.ID, "   \n\t", ErrEmptyMessage},
		{"empty", f.buyer.ID, "", ErrEmptyMessage},
		{"non-member", f.other.ID, "hello", ErrConversationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Send(ctx, conv.ID, tt.sender, tt.body); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := f.svc.Send(ctx, 999, f.buyer.ID, "hello"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

// TestService_ReadReceipts tests that opening a thread marks only the other party's messages read.
func TestService_ReadReceipts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _, _ := f.svc.Open(ctx, f.offer.ID, f.buyer.ID)

	_, _ = f.svc.Send(ctx, conv.ID, f.buyer.ID, "one")
	_, _ = f.svc.Send(ctx, conv.ID, f.buyer.ID, "two")

	unread, err := f.svc.SellerUnreadCount(ctx, f.seller.ID)
	if err != nil {
		t.Fatalf("SellerUnreadCount failed: %v", err)
	}
	if unread != 2 {
		t.Errorf("expected 2 unread, got %d", unread)
	}

	// Buyer reading their own messages changes nothing.
	if _, err := f.svc.Messages(ctx, conv.ID, f.buyer.ID); err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if unread, _ := f.svc.SellerUnreadCount(ctx, f.seller.ID); unread != 2 {
		t.Errorf("expected 2 unread after buyer read, got %d", unread)
	}

	msgs, err := f.svc.Messages(ctx, conv.ID, f.seller.ID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "one" || msgs[1].Body != "two" {
		t.Errorf("expected oldest first, got %+v", msgs)
	}
	for _, m := range msgs {
		if !m.IsRead {
			t.Errorf("message %d should be read", m.ID)
		}
	}
	if unread, _ := f.svc.SellerUnreadCount(ctx, f.seller.ID); unread != 0 {
		t.Errorf("expected 0 unread, got %d", unread)
	}

	if _, err := f.svc.Messages(ctx, conv.ID, f.other.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("non-member: expected ErrConversationNotFound, got %v", err)
	}
}

// TestService_Inbox tests ordering, unread counts and the limit.
func TestService_Inbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, _ := f.svc.Open(ctx, f.offer.ID, f.buyer.ID)
	second, _, _ := f.svc.Open(ctx, f.offer.ID, f.other.ID)
	_, _ = f.svc.Send(ctx, second.ID, f.other.ID, "from eve")
	_, _ = f.svc.Send(ctx, first.ID, f.buyer.ID, "from bob")
	_, _ = f.svc.Send(ctx, first.ID, f.buyer.ID, "from bob again")

	entries, total, err := f.svc.Inbox(ctx, f.seller.ID, 0)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 total unread, got %d", total)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	top := entries[0]
	if top.ConversationID != first.ID || top.OtherParty != "bob" || top.LastMessage != "from bob again" || top.UnreadCount != 2 {
		t.Errorf("unexpected top entry %+v", top)
	}
	if top.ServiceTitle != "Logo design" || top.LastTimestamp == nil {
		t.Errorf("missing service title or timestamp: %+v", top)
	}

	limited, total, err := f.svc.Inbox(ctx, f.seller.ID, 1)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(limited) != 1 || total != 3 {
		t.Errorf("expected 1 entry with total 3, got %d entries and total %d", len(limited), total)
	}

	buyerInbox, buyerTotal, err := f.svc.Inbox(ctx, f.buyer.ID, 0)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(buyerInbox) != 1 || buyerInbox[0].OtherParty != "sally" || buyerTotal != 0 {
		t.Errorf("unexpected buyer inbox %+v (total %d)", buyerInbox, buyerTotal)
	}
}

// TestService_InboxDeletedService tests that a deleted service leaves an untitled entry.
func TestService_InboxDeletedService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _, _ := f.svc.Open(ctx, f.offer.ID, f.buyer.ID)
	_, _ = f.svc.Send(ctx, conv.ID, f.buyer.ID, "hello")

	if err := f.services.Delete(ctx, f.offer.ID, f.seller.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	entries, _, err := f.svc.Inbox(ctx, f.seller.ID, 0)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ServiceTitle != "" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

// TestService_SellerInbox tests that only conversations about the caller's services are listed.
func TestService_SellerInbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The seller also buys from another seller.
	otherOffer := &listing.Service{OwnerID: f.other.ID, Title: "Tutoring", Description: "Maths", Price: 15}
	if err := f.services.Insert(ctx, otherOffer); err != nil {
		t.Fatalf("insert service: %v", err)
	}

	sold, _, err := f.svc.Open(ctx, f.offer.ID, f.buyer.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := f.svc.Send(ctx, sold.ID, f.buyer.ID, "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	bought, _, err := f.svc.Open(ctx, otherOffer.ID, f.seller.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := f.svc.Send(ctx, bought.ID, f.other.ID, "hi there"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	all, allUnread, err := f.svc.Inbox(ctx, f.seller.ID, 0)
	if err != nil {
		t.Fatalf("Inbox() error = %v", err)
	}
	if len(all) != 2 || allUnread != 2 {
		t.Errorf("Inbox() = %d entries, %d unread; want 2, 2", len(all), allUnread)
	}

	entries, unread, err := f.svc.SellerInbox(ctx, f.seller.ID)
	if err != nil {
		t.Fatalf("SellerInbox() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ConversationID != sold.ID {
		t.Fatalf("SellerInbox() = %+v, want only conversation %d", entries, sold.ID)
	}
	if unread != 1 || entries[0].OtherParty != "bob" {
		t.Errorf("unread = %d, other party = %q; want 1, bob", unread, entries[0].OtherParty)
	}
}
