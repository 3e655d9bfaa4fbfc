package user

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdateResume(ctx context.Context, id int64, resume string) error
	UpdatePreferences(ctx context.Context, id int64, prefs []string) error
	// SellerProfile and Preferences let listing stores join seller data.
	SellerProfile(ctx context.Context, id int64) (username, resume string, err error)
	Preferences(ctx context.Context, id int64) ([]string, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu     sync.RWMutex
	users  map[int64]*User
	byName map[string]int64
	nextID int64
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:  make(map[int64]*User),
		byName: make(map[string]int64),
		nextID: 1,
	}
}

// Create stores a new user and assigns its ID.
// Usernames are compared case-insensitively.
func (r *InMemoryRepository) Create(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(u.Username)
	if _, exists := r.byName[key]; exists {
		return ErrUsernameTaken
	}

	u.ID = r.nextID
	r.nextID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Preferences == nil {
		u.Preferences = []string{}
	}

	r.users[u.ID] = u.clone()
	r.byName[key] = u.ID
	return nil
}

// GetByID returns a copy of the user.
func (r *InMemoryRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.clone(), nil
}

// GetByUsername returns a copy of the user with the given username.
func (r *InMemoryRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.users[id].clone(), nil
}

// UpdateResume replaces the user's resume text.
func (r *InMemoryRepository) UpdateResume(ctx context.Context, id int64, resume string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Resume = resume
	return nil
}

// UpdatePreferences replaces the user's ordered preference tags.
func (r *InMemoryRepository) UpdatePreferences(ctx context.Context, id int64, prefs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Preferences = append([]string{}, prefs...)
	return nil
}

// SellerProfile returns the username and resume of a seller.
func (r *InMemoryRepository) SellerProfile(ctx context.Context, id int64) (string, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return "", "", ErrUserNotFound
	}
	return u.Username, u.Resume, nil
}

// Preferences returns the user's tags in order; unknown users have none.
func (r *InMemoryRepository) Preferences(ctx context.Context, id int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return []string{}, nil
	}
	return append([]string{}, u.Preferences...), nil
}
