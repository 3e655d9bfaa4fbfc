package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/onnwee/freelancehub/internal/tracing"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

const paymentColumns = `id, session_id, status, amount, currency, buyer_id, service_id, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreatePending inserts a pending payment record.
func (r *PostgresRepository) CreatePending(ctx context.Context, record *PaymentRecord) (err error) {
	if record.Amount <= 0 {
		return ErrInvalidAmount
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Currency == "" {
		record.Currency = Currency
	}
	record.Status = StatusPending

	ctx, end := tracing.StartDBSpan(ctx, "payments", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO payments (id, session_id, status, amount, currency, buyer_id, service_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		record.ID, record.SessionID, record.Status, record.Amount, record.Currency,
		record.BuyerID, record.ServiceID,
	).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateSessionID
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetBySessionID retrieves a payment record by Checkout Session ID.
func (r *PostgresRepository) GetBySessionID(ctx context.Context, sessionID string) (_ *PaymentRecord, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "payments", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE session_id = $1`
	record, err := scanPayment(r.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return record, nil
}

// SetStatus moves a pending record to status.
func (r *PostgresRepository) SetStatus(ctx context.Context, sessionID, status string) (_ *PaymentRecord, err error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	ctx, end := tracing.StartDBSpan(ctx, "payments", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	query := `
		UPDATE payments SET status = $2, updated_at = NOW()
		WHERE session_id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns
	record, err := scanPayment(r.db.QueryRowContext(ctx, query, sessionID, status))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	// Either missing or already finished.
	current, getErr := r.GetBySessionID(ctx, sessionID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status != status {
		return nil, ErrInvalidTransition
	}
	return current, nil
}

// CancelLatestPending cancels the newest pending record for (serviceID, buyerID).
func (r *PostgresRepository) CancelLatestPending(ctx context.Context, serviceID, buyerID int64) (_ *PaymentRecord, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "payments", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	query := `
		UPDATE payments SET status = 'canceled', updated_at = NOW()
		WHERE id = (
			SELECT id FROM payments
			WHERE service_id = $1 AND buyer_id = $2 AND status = 'pending'
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING ` + paymentColumns
	record, err := scanPayment(r.db.QueryRowContext(ctx, query, serviceID, buyerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel payment: %w", err)
	}
	return record, nil
}

func scanPayment(row *sql.Row) (*PaymentRecord, error) {
	p := &PaymentRecord{}
	err := row.Scan(&p.ID, &p.SessionID, &p.Status, &p.Amount, &p.Currency,
		&p.BuyerID, &p.ServiceID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PostgresWebhookRepository implements WebhookRepository using PostgreSQL.
type PostgresWebhookRepository struct {
	db *sql.DB
}

// NewPostgresWebhookRepository creates a new PostgresWebhookRepository.
func NewPostgresWebhookRepository(db *sql.DB) *PostgresWebhookRepository {
	return &PostgresWebhookRepository{db: db}
}

// RecordEvent inserts the event ID, failing on duplicates.
func (r *PostgresWebhookRepository) RecordEvent(ctx context.Context, eventID, eventType string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "webhook_events", tracing.DBOperationInsert)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if n == 0 {
		return ErrEventAlreadyProcessed
	}
	return nil
}

// HasProcessed checks if an event has already been processed.
func (r *PostgresWebhookRepository) HasProcessed(ctx context.Context, eventID string) (_ bool, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "webhook_events", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return exists, nil
}
