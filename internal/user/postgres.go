package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/onnwee/freelancehub/internal/tracing"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create stores a new user. Usernames are unique case-insensitively.
func (r *PostgresRepository) Create(ctx context.Context, u *User) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "users", tracing.DBOperationInsert)
	defer func() { end(err) }()

	if u.Preferences == nil {
		u.Preferences = []string{}
	}
	query := `
		INSERT INTO users (username, password_hash, is_buyer, is_seller, resume, preferences)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		u.Username, u.PasswordHash, u.IsBuyer, u.IsSeller, u.Resume, pq.Array(u.Preferences),
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns the user with the given ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByUsername returns the user with the given username.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, `WHERE lower(username) = lower($1)`, username)
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (_ *User, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "users", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT id, username, password_hash, is_buyer, is_seller, resume, preferences, created_at
		FROM users ` + where

	u := &User{}
	err = r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.IsBuyer, &u.IsSeller,
		&u.Resume, pq.Array(&u.Preferences), &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.Preferences == nil {
		u.Preferences = []string{}
	}
	return u, nil
}

// UpdateResume replaces the user's resume text.
func (r *PostgresRepository) UpdateResume(ctx context.Context, id int64, resume string) error {
	return r.exec(ctx, `UPDATE users SET resume = $1 WHERE id = $2`, resume, id)
}

// UpdatePreferences replaces the user's ordered preference tags.
func (r *PostgresRepository) UpdatePreferences(ctx context.Context, id int64, prefs []string) error {
	if prefs == nil {
		prefs = []string{}
	}
	return r.exec(ctx, `UPDATE users SET preferences = $1 WHERE id = $2`, pq.Array(prefs), id)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "users", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SellerProfile returns the username and resume of a seller.
func (r *PostgresRepository) SellerProfile(ctx context.Context, id int64) (string, string, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	return u.Username, u.Resume, nil
}

// Preferences returns the user's tags in order; unknown users have none.
func (r *PostgresRepository) Preferences(ctx context.Context, id int64) ([]string, error) {
	u, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return u.Preferences, nil
}
