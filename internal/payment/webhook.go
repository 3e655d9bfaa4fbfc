package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Checkout event types the service reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutEvent is a verified webhook event that concerns a Checkout Session.
type CheckoutEvent struct {
	ID        string
	Type      string
	SessionID string
}

// Status returns the payment status the event implies, or "" for events that do not change it.
func (e *CheckoutEvent) Status() string {
	switch e.Type {
	case EventCheckoutCompleted:
		return StatusSucceeded
	case EventCheckoutExpired:
		return StatusCanceled
	}
	return ""
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// SessionID is only set for checkout.session.* events.
func ParseWebhook(payload []byte, signature, secret string) (*CheckoutEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &CheckoutEvent{ID: event.ID, Type: string(event.Type)}
	if out.Status() == "" {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	out.SessionID = sess.ID
	return out, nil
}
