package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPaymentRecordNotFound is returned when a payment record is not found.
var ErrPaymentRecordNotFound = errors.New("payment record not found")

// ErrDuplicateSessionID is returned when a session ID is already recorded.
var ErrDuplicateSessionID = errors.New("session ID already recorded")

// ErrInvalidTransition is returned when a finished payment would change status.
var ErrInvalidTransition = errors.New("payment already finished")

// ErrInvalidStatus is returned for unknown status values.
var ErrInvalidStatus = errors.New("invalid payment status")

// Repository persists payment records.
type Repository interface {
	// CreatePending stores a new record with status pending.
	CreatePending(ctx context.Context, record *PaymentRecord) error
	GetBySessionID(ctx context.Context, sessionID string) (*PaymentRecord, error)
	// SetStatus moves a pending record to status. Setting the current status again is a no-op.
	SetStatus(ctx context.Context, sessionID, status string) (*PaymentRecord, error)
	// CancelLatestPending cancels the buyer's most recent pending record for the service.
	CancelLatestPending(ctx context.Context, serviceID, buyerID int64) (*PaymentRecord, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*PaymentRecord // session ID -> record
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory payment repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*PaymentRecord),
		now:     time.Now,
	}
}

// CreatePending adds a new pending record.
func (r *InMemoryRepository) CreatePending(ctx context.Context, record *PaymentRecord) error {
	if record.Amount <= 0 {
		return ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.SessionID]; exists {
		return ErrDuplicateSessionID
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Currency == "" {
		record.Currency = Currency
	}
	record.Status = StatusPending
	now := r.now()
	record.CreatedAt = now
	record.UpdatedAt = now

	copied := *record
	r.records[record.SessionID] = &copied
	return nil
}

// GetBySessionID retrieves a payment record by Checkout Session ID.
func (r *InMemoryRepository) GetBySessionID(ctx context.Context, sessionID string) (*PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[sessionID]
	if !ok {
		return nil, ErrPaymentRecordNotFound
	}
	copied := *record
	return &copied, nil
}

// SetStatus updates the record's status.
func (r *InMemoryRepository) SetStatus(ctx context.Context, sessionID, status string) (*PaymentRecord, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[sessionID]
	if !ok {
		return nil, ErrPaymentRecordNotFound
	}
	if record.Status != status {
		if record.IsTerminal() {
			return nil, ErrInvalidTransition
		}
		record.Status = status
		record.UpdatedAt = r.now()
	}
	copied := *record
	return &copied, nil
}

// CancelLatestPending cancels the newest pending record for (serviceID, buyerID).
func (r *InMemoryRepository) CancelLatestPending(ctx context.Context, serviceID, buyerID int64) (*PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *PaymentRecord
	for _, record := range r.records {
		if record.ServiceID != serviceID || record.BuyerID != buyerID || record.Status != StatusPending {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, ErrPaymentRecordNotFound
	}

	latest.Status = StatusCanceled
	latest.UpdatedAt = r.now()
	copied := *latest
	return &copied, nil
}
