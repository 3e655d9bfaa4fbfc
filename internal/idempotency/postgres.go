package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
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

// Get retrieves the user's record for key.
func (r *PostgresRepository) Get(ctx context.Context, userID int64, key string) (_ *IdempotencyKey, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "idempotency_keys", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT key, user_id, method, route, created_at, response_hash, status,
		       response_body, response_status_code
		FROM idempotency_keys
		WHERE user_id = $1 AND key = $2
	`
	rec := &IdempotencyKey{}
	err = r.db.QueryRowContext(ctx, query, userID, key).Scan(
		&rec.Key, &rec.UserID, &rec.Method, &rec.Route, &rec.CreatedAt, &rec.ResponseHash,
		&rec.Status, &rec.ResponseBody, &rec.ResponseStatusCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return rec, nil
}

// Store saves a new idempotency key.
func (r *PostgresRepository) Store(ctx context.Context, record *IdempotencyKey) (err error) {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	ctx, end := tracing.StartDBSpan(ctx, "idempotency_keys", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO idempotency_keys
			(key, user_id, method, route, response_hash, status, response_body, response_status_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		record.Key, record.UserID, record.Method, record.Route, record.ResponseHash,
		record.Status, record.ResponseBody, record.ResponseStatusCode,
	).Scan(&record.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// DeleteOlderThan removes idempotency keys older than the specified duration.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, duration time.Duration) (_ int64, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "idempotency_keys", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().Add(-duration))
	if err != nil {
		return 0, fmt.Errorf("failed to delete idempotency keys: %w", err)
	}
	return res.RowsAffected()
}
