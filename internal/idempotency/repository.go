package idempotency

import (
	"context"
	"sync"
	"time"
)

type scopedKey struct {
	userID int64
	key    string
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu   sync.RWMutex
	keys map[scopedKey]IdempotencyKey
	now  func() time.Time
}

// NewInMemoryRepository creates a new in-memory idempotency key repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		keys: make(map[scopedKey]IdempotencyKey),
		now:  time.Now,
	}
}

// Get retrieves the user's record for key.
func (r *InMemoryRepository) Get(ctx context.Context, userID int64, key string) (*IdempotencyKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.keys[scopedKey{userID, key}]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &record, nil
}

// Store saves a new idempotency key.
func (r *InMemoryRepository) Store(ctx context.Context, record *IdempotencyKey) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := scopedKey{record.UserID, record.Key}
	if _, exists := r.keys[k]; exists {
		return ErrKeyExists
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}
	r.keys[k] = *record
	return nil
}

// DeleteOlderThan removes idempotency keys older than the specified duration.
func (r *InMemoryRepository) DeleteOlderThan(ctx context.Context, duration time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-duration)
	var deleted int64
	for k, record := range r.keys {
		if record.CreatedAt.Before(cutoff) {
			delete(r.keys, k)
			deleted++
		}
	}
	return deleted, nil
}
