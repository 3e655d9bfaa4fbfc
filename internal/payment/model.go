// Package payment records Stripe Checkout purchases of marketplace services.
package payment

import (
	"errors"
	"math"
	"time"
)

// Payment statuses.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Currency is the ISO currency code all services are priced in.
const Currency = "myr"

// ErrInvalidAmount is returned when a price does not convert to a positive amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// PaymentRecord tracks one Checkout Session for a service purchase.
type PaymentRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"` // minor units (sen)
	Currency  string    `json:"currency"`
	BuyerID   int64     `json:"buyer_id"`
	ServiceID int64     `json:"service_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the record has left the pending state.
func (p *PaymentRecord) IsTerminal() bool {
	return p.Status != StatusPending
}

// AmountFromPrice converts a price in ringgit to sen, rounding half away from zero.
func AmountFromPrice(price float64) (int64, error) {
	amount := int64(math.Round(price * 100))
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}
