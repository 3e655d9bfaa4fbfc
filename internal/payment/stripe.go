package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// CheckoutSessionParams describes a single-item purchase of a service.
type CheckoutSessionParams struct {
	ServiceID int64
	BuyerID   int64
	Title     string
	Amount    int64 // minor units
	BaseURL   string
}

// SuccessURL is where Stripe sends the buyer after paying.
// Stripe substitutes the literal {CHECKOUT_SESSION_ID} placeholder.
func (p *CheckoutSessionParams) SuccessURL() string {
	return strings.TrimSuffix(p.BaseURL, "/") + "/success?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where Stripe sends the buyer after abandoning checkout.
func (p *CheckoutSessionParams) CancelURL() string {
	return fmt.Sprintf("%s/cancel?service_id=%d", strings.TrimSuffix(p.BaseURL, "/"), p.ServiceID)
}

// Client is an interface for Stripe operations to enable testing with mocks.
type Client interface {
	CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeClient implements Client using the Stripe SDK.
type StripeClient struct{}

// NewStripeClient creates a new Stripe client with the given API key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// CreateCheckoutSession creates a card-only Checkout Session priced inline in MYR.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	sessionParams := buildSessionParams(params)
	sessionParams.Context = ctx
	return session.New(sessionParams)
}

func buildSessionParams(p *CheckoutSessionParams) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Title),
					},
					UnitAmount: stripe.Int64(p.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL()),
		CancelURL:  stripe.String(p.CancelURL()),
	}
	params.AddMetadata("service_id", strconv.FormatInt(p.ServiceID, 10))
	params.AddMetadata("buyer_id", strconv.FormatInt(p.BuyerID, 10))
	return params
}
