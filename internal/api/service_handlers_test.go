package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/payment"
)

type cancelResponse struct {
	ServiceID int64 `json:"service_id"`
	Canceled  bool  `json:"canceled"`
}

func TestServiceDetail(t *testing.T) {
	a := newTestAPI(t)
	sellerID, _ := a.signup(t, "sally")
	_, token := a.signup(t, "bob")
	svc := a.addService(t, sellerID, "Logo design", "Logos", "Graphic Design", 40)

	w := a.do(http.MethodGet, "/services/"+itoa(svc.ID), token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	l := decode[listing.Listing](t, w)
	if l.SellerUsername != "sally" || l.ImageURL != listing.DefaultImageURL || l.Title != "Logo design" {
		t.Errorf("listing = %+v", l)
	}

	assertError(t, a.do(http.MethodGet, "/services/999", token, nil, ""), http.StatusNotFound, ErrCodeNotFound)
}

func TestCheckout(t *testing.T) {
	a := newTestAPI(t)
	sellerID, _ := a.signup(t, "sally")
	buyerID, token := a.signup(t, "bob")
	svc := a.addService(t, sellerID, "Logo design", "Logos", "Graphic Design", 49.90)

	w := a.do(http.MethodPost, "/services/"+itoa(svc.ID)+"/checkout", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	resp := decode[CheckoutResponse](t, w)
	if resp.SessionID != "cs_test_1" || resp.SessionURL == "" {
		t.Errorf("response = %+v", resp)
	}

	if a.stripe.callCount() != 1 {
		t.Fatalf("stripe calls = %d, want 1", a.stripe.callCount())
	}
	params := a.stripe.calls[0]
	if params.Amount != 4990 || params.Title != "Logo design" || params.BaseURL != testBaseURL || params.BuyerID != buyerID {
		t.Errorf("params = %+v", params)
	}

	record, err := a.payments.GetBySessionID(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("GetBySessionID() error = %v", err)
	}
	if record.Status != payment.StatusPending || record.Amount != 4990 || record.Currency != payment.Currency || record.ServiceID != svc.ID {
		t.Errorf("record = %+v", record)
	}
}

func TestCheckout_Failures(t *testing.T) {
	a := newTestAPI(t)
	sellerID, sellerToken := a.signup(t, "sally")
	_, buyerToken := a.signup(t, "bob")
	svc := a.addService(t, sellerID, "Logo design", "Logos", "Graphic Design", 40)
	path := "/services/" + itoa(svc.ID) + "/checkout"

	assertError(t, a.do(http.MethodPost, path, sellerToken, nil, ""), http.StatusBadRequest, ErrCodeValidation)
	assertError(t, a.do(http.MethodPost, "/services/999/checkout", buyerToken, nil, ""), http.StatusNotFound, ErrCodeNotFound)

	a.stripe.err = errors.New("card_declined")
	assertError(t, a.do(http.MethodPost, path, buyerToken, nil, ""), http.StatusBadGateway, ErrCodePaymentFailed)
}

func TestCheckout_IdempotencyKey(t *testing.T) {
	a := newTestAPI(t)
	sellerID, _ := a.signup(t, "sally")
	_, token := a.signup(t, "bob")
	svc := a.addService(t, sellerID, "Logo design", "Logos", "Graphic Design", 40)
	path := "/services/" + itoa(svc.ID) + "/checkout"

	first := a.do(http.MethodPost, path, token, nil, "", middleware.IdempotencyKeyHeader, "checkout-1")
	second := a.do(http.MethodPost, path, token, nil, "", middleware.IdempotencyKeyHeader, "checkout-1")

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}
	if a.stripe.callCount() != 1 {
		t.Errorf("stripe calls = %d, want 1", a.stripe.callCount())
	}
	if second.Header().Get(middleware.IdempotentReplayHeader) != "true" {
		t.Errorf("replay header = %q", second.Header().Get(middleware.IdempotentReplayHeader))
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("replayed body = %s, want %s", second.Body.String(), first.Body.String())
	}

	third := a.do(http.MethodPost, path, token, nil, "", middleware.IdempotencyKeyHeader, "checkout-2")
	if third.Code != http.StatusOK || a.stripe.callCount() != 2 {
		t.Errorf("new key: status = %d, stripe calls = %d", third.Code, a.stripe.callCount())
	}
}

func TestSuccessAndCancel(t *testing.T) {
	a := newTestAPI(t)
	sellerID, _ := a.signup(t, "sally")
	_, token := a.signup(t, "bob")
	_, eveToken := a.signup(t, "eve")
	svc := a.addService(t, sellerID, "Logo design", "Logos", "Graphic Design", 40)
	checkout := func() string {
		w := a.do(http.MethodPost, "/services/"+itoa(svc.ID)+"/checkout", token, nil, "")
		return decode[CheckoutResponse](t, w).SessionID
	}

	paid := checkout()
	assertError(t, a.do(http.MethodGet, "/success", token, nil, ""), http.StatusBadRequest, ErrCodeValidation)
	assertError(t, a.do(http.MethodGet, "/success?session_id=cs_unknown", token, nil, ""), http.StatusNotFound, ErrCodeNotFound)
	assertError(t, a.do(http.MethodGet, "/success?session_id="+paid, eveToken, nil, ""), http.StatusNotFound, ErrCodeNotFound)

	w := a.do(http.MethodGet, "/success?session_id="+paid, token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if rec := decode[payment.PaymentRecord](t, w); rec.Status != payment.StatusSucceeded {
		t.Errorf("status = %q, want succeeded", rec.Status)
	}

	abandoned := checkout()
	w = a.do(http.MethodGet, "/cancel?service_id="+itoa(svc.ID), token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	body := decode[cancelResponse](t, w)
	if body.ServiceID != svc.ID || !body.Canceled {
		t.Errorf("cancel = %+v", body)
	}
	if rec, _ := a.payments.GetBySessionID(context.Background(), abandoned); rec.Status != payment.StatusCanceled {
		t.Errorf("abandoned status = %q, want canceled", rec.Status)
	}
	if rec, _ := a.payments.GetBySessionID(context.Background(), paid); rec.Status != payment.StatusSucceeded {
		t.Errorf("paid status = %q, want succeeded", rec.Status)
	}

	// Nothing left to cancel.
	w = a.do(http.MethodGet, "/cancel?service_id="+itoa(svc.ID), token, nil, "")
	if w.Code != http.StatusOK || decode[cancelResponse](t, w).Canceled {
		t.Errorf("second cancel = %d %s", w.Code, w.Body.String())
	}
	assertError(t, a.do(http.MethodGet, "/cancel", token, nil, ""), http.StatusBadRequest, ErrCodeValidation)
}
