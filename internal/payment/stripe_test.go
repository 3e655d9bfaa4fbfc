package payment

import "testing"

func TestCheckoutURLs(t *testing.T) {
	p := &CheckoutSessionParams{ServiceID: 42, BaseURL: "https://hub.example.com/"}

	if got, want := p.SuccessURL(), "https://hub.example.com/success?session_id={CHECKOUT_SESSION_ID}"; got != want {
		t.Errorf("SuccessURL() = %q, want %q", got, want)
	}
	if got, want := p.CancelURL(), "https://hub.example.com/cancel?service_id=42"; got != want {
		t.Errorf("CancelURL() = %q, want %q", got, want)
	}
}

func TestBuildSessionParams(t *testing.T) {
	params := buildSessionParams(&CheckoutSessionParams{
		ServiceID: 7,
		BuyerID:   3,
		Title:     "Logo design",
		Amount:    5000,
		BaseURL:   "http://localhost:8080",
	})

	if *params.Mode != "payment" {
		t.Errorf("expected payment mode, got %q", *params.Mode)
	}
	if len(params.PaymentMethodTypes) != 1 || *params.PaymentMethodTypes[0] != "card" {
		t.Errorf("expected card payment method, got %v", params.PaymentMethodTypes)
	}
	if len(params.LineItems) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(params.LineItems))
	}

	item := params.LineItems[0]
	if *item.Quantity != 1 {
		t.Errorf("expected quantity 1, got %d", *item.Quantity)
	}
	if *item.PriceData.Currency != "myr" {
		t.Errorf("expected myr, got %q", *item.PriceData.Currency)
	}
	if *item.PriceData.UnitAmount != 5000 {
		t.Errorf("expected unit amount 5000, got %d", *item.PriceData.UnitAmount)
	}
	if *item.PriceData.ProductData.Name != "Logo design" {
		t.Errorf("expected product name, got %q", *item.PriceData.ProductData.Name)
	}
	if *params.SuccessURL != "http://localhost:8080/success?session_id={CHECKOUT_SESSION_ID}" {
		t.Errorf("unexpected success URL %q", *params.SuccessURL)
	}
	if *params.CancelURL != "http://localhost:8080/cancel?service_id=7" {
		t.Errorf("unexpected cancel URL %q", *params.CancelURL)
	}
	if params.Metadata["service_id"] != "7" || params.Metadata["buyer_id"] != "3" {
		t.Errorf("unexpected metadata %v", params.Metadata)
	}
}
