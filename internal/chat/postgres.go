package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onnwee/freelancehub/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreateConversation upserts on (service_id, buyer_id) and returns the row.
func (r *PostgresRepository) GetOrCreateConversation(ctx context.Context, serviceID, buyerID, sellerID int64) (_ *Conversation, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "conversations", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO conversations (service_id, buyer_id, seller_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (service_id, buyer_id) DO UPDATE SET service_id = EXCLUDED.service_id
		RETURNING id, service_id, buyer_id, seller_id, created_at
	`
	c := &Conversation{}
	err = r.db.QueryRowContext(ctx, query, serviceID, buyerID, sellerID).Scan(
		&c.ID, &c.ServiceID, &c.BuyerID, &c.SellerID, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create conversation: %w", err)
	}
	return c, nil
}

// GetConversation returns the conversation with the given ID.
func (r *PostgresRepository) GetConversation(ctx context.Context, id int64) (_ *Conversation, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "conversations", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT id, service_id, buyer_id, seller_id, created_at
		FROM conversations
		WHERE id = $1
	`
	c := &Conversation{}
	err = r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.ServiceID, &c.BuyerID, &c.SellerID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// ListMessages returns messages with sender usernames, oldest first.
func (r *PostgresRepository) ListMessages(ctx context.Context, conversationID int64) (_ []Message, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "chat_messages", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.message, m.is_read, m.timestamp
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
		ORDER BY m.timestamp ASC, m.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err = rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderUsername, &m.Body, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

// MarkRead marks the other party's unread messages as read.
func (r *PostgresRepository) MarkRead(ctx context.Context, conversationID, readerID int64) (_ int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "chat_messages", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	query := `
		UPDATE chat_messages
		SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// AddMessage inserts the message and notification in one transaction.
func (r *PostgresRepository) AddMessage(ctx context.Context, msg *Message, n *Notification) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "chat_messages", tracing.DBOperationInsert)
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO chat_messages (conversation_id, sender_id, message)
		VALUES ($1, $2, $3)
		RETURNING id, is_read, timestamp
	`, msg.ConversationID, msg.SenderID, msg.Body).Scan(&msg.ID, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if n != nil {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO notifications (user_id, message)
			VALUES ($1, $2)
			RETURNING id, is_read, created_at
		`, n.UserID, n.Message).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// ListSummaries returns the user's conversations with the latest message and unread count.
func (r *PostgresRepository) ListSummaries(ctx context.Context, userID int64) (_ []Summary, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "conversations", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT c.id, c.service_id, c.buyer_id, c.seller_id, c.created_at,
		       lm.id, lm.sender_id, lm.username, lm.message, lm.is_read, lm.timestamp,
		       (SELECT COUNT(*) FROM chat_messages um
		        WHERE um.conversation_id = c.id AND um.sender_id <> $1 AND um.is_read = FALSE)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT m.id, m.sender_id, u.username, m.message, m.is_read, m.timestamp
			FROM chat_messages m
			JOIN users u ON u.id = m.sender_id
			WHERE m.conversation_id = c.id
			ORDER BY m.timestamp DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE c.buyer_id = $1 OR c.seller_id = $1
		ORDER BY COALESCE(lm.timestamp, c.created_at) DESC, c.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var (
			s        Summary
			msgID    sql.NullInt64
			senderID sql.NullInt64
			username sql.NullString
			body     sql.NullString
			isRead   sql.NullBool
			sentAt   sql.NullTime
		)
		c := &s.Conversation
		err = rows.Scan(&c.ID, &c.ServiceID, &c.BuyerID, &c.SellerID, &c.CreatedAt,
			&msgID, &senderID, &username, &body, &isRead, &sentAt, &s.UnreadCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if msgID.Valid {
			s.LastMessage = &Message{
				ID:             msgID.Int64,
				ConversationID: c.ID,
				SenderID:       senderID.Int64,
				SenderUsername: username.String,
				Body:           body.String,
				IsRead:         isRead.Bool,
				CreatedAt:      sentAt.Time,
			}
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return out, nil
}

// SellerUnreadCount counts unread buyer messages across the seller's conversations.
func (r *PostgresRepository) SellerUnreadCount(ctx context.Context, sellerID int64) (_ int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "chat_messages", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT COUNT(*)
		FROM chat_messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.seller_id = $1 AND m.sender_id <> $1 AND m.is_read = FALSE
	`
	var n int
	if err = r.db.QueryRowContext(ctx, query, sellerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// ListNotifications returns the user's notifications, newest first.
func (r *PostgresRepository) ListNotifications(ctx context.Context, userID int64) (_ []Notification, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "notifications", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT id, user_id, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err = rows.Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}
