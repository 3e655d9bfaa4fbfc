package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/onnwee/freelancehub/internal/tracing"
)

// listingColumns selects a Listing from services joined with users.
const listingColumns = `
	s.id, s.user_id, s.title, s.description, s.price, s.tag,
	u.resume, u.username, s.image_url`

// PostgresRepository implements Repository and Store using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new service and assigns its ID and timestamps.
func (r *PostgresRepository) Insert(ctx context.Context, svc *Service) (err error) {
	if svc.Price <= 0 {
		return ErrInvalidPrice
	}
	if svc.Tag == "" {
		svc.Tag = DefaultTag
	}

	ctx, end := tracing.StartDBSpan(ctx, "services", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO services (user_id, title, description, price, tag, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		svc.OwnerID, svc.Title, svc.Description, svc.Price, svc.Tag, svc.ImageURL,
	).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert service: %w", err)
	}
	return nil
}

// GetByID returns the service with the given ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (_ *Service, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "services", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT id, user_id, title, description, price, tag, image_url, created_at, updated_at
		FROM services
		WHERE id = $1
	`
	svc := &Service{}
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&svc.ID, &svc.OwnerID, &svc.Title, &svc.Description, &svc.Price,
		&svc.Tag, &svc.ImageURL, &svc.CreatedAt, &svc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return svc, nil
}

// GetListing returns the service joined with its seller.
func (r *PostgresRepository) GetListing(ctx context.Context, id int64) (_ *Listing, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "services", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `SELECT` + listingColumns + `
		FROM services s
		JOIN users u ON s.user_id = u.id
		WHERE s.id = $1
	`
	l, err := scanListing(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &l, nil
}

// ListByOwner returns the owner's services ordered by ID.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) (_ []*Service, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "services", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT id, user_id, title, description, price, tag, image_url, created_at, updated_at
		FROM services
		WHERE user_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*Service
	for rows.Next() {
		svc := &Service{}
		if err := rows.Scan(
			&svc.ID, &svc.OwnerID, &svc.Title, &svc.Description, &svc.Price,
			&svc.Tag, &svc.ImageURL, &svc.CreatedAt, &svc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// Update applies an owner's edit to title, description and price.
func (r *PostgresRepository) Update(ctx context.Context, svc *Service) (err error) {
	if svc.Price <= 0 {
		return ErrInvalidPrice
	}

	ctx, end := tracing.StartDBSpan(ctx, "services", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	query := `
		UPDATE services
		SET title = $1, description = $2, price = $3, updated_at = NOW()
		WHERE id = $4 AND user_id = $5
		RETURNING tag, image_url, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		svc.Title, svc.Description, svc.Price, svc.ID, svc.OwnerID,
	).Scan(&svc.Tag, &svc.ImageURL, &svc.CreatedAt, &svc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrServiceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return nil
}

// Delete removes a service owned by ownerID.
func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID int64) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "services", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrServiceNotFound
	}
	return nil
}

// FetchAllListings returns every listing in ID order.
func (r *PostgresRepository) FetchAllListings(ctx context.Context) ([]Listing, error) {
	query := `SELECT` + listingColumns + `
		FROM services s
		JOIN users u ON s.user_id = u.id
		ORDER BY s.id
	`
	return r.queryListings(ctx, query)
}

// FetchListingsExcludingOwner returns listings not owned by userID, in ID order.
func (r *PostgresRepository) FetchListingsExcludingOwner(ctx context.Context, userID int64) ([]Listing, error) {
	query := `SELECT` + listingColumns + `
		FROM services s
		JOIN users u ON s.user_id = u.id
		WHERE s.user_id != $1
		ORDER BY s.id
	`
	return r.queryListings(ctx, query, userID)
}

// FetchUserPreferences returns the user's saved tags in order.
// A missing user has no preferences.
func (r *PostgresRepository) FetchUserPreferences(ctx context.Context, userID int64) (_ []string, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "users", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var prefs []string
	err = r.db.QueryRowContext(ctx, `SELECT preferences FROM users WHERE id = $1`, userID).
		Scan(pq.Array(&prefs))
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	if prefs == nil {
		prefs = []string{}
	}
	return prefs, nil
}

func (r *PostgresRepository) queryListings(ctx context.Context, query string, args ...any) (_ []Listing, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "services", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	out := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (Listing, error) {
	var l Listing
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.Price, &l.Tag,
		&l.Resume, &l.SellerUsername, &l.ImageURL,
	)
	l.ImageURL = imageOrDefault(l.ImageURL)
	return l, err
}
