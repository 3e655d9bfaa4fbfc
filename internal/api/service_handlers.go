package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/payment"
)

// ServiceHandlers serves service detail pages and Stripe Checkout.
type ServiceHandlers struct {
	services listing.Repository
	payments payment.Repository
	stripe   payment.Client
	baseURL  string
}

// NewServiceHandlers creates the service handlers. baseURL is where Stripe
// redirects buyers after checkout.
func NewServiceHandlers(services listing.Repository, payments payment.Repository, stripe payment.Client, baseURL string) *ServiceHandlers {
	return &ServiceHandlers{services: services, payments: payments, stripe: stripe, baseURL: baseURL}
}

// CheckoutResponse is the body of POST /services/{id}/checkout. Clients redirect to SessionURL.
type CheckoutResponse struct {
	SessionURL string `json:"session_url"`
	SessionID  string `json:"session_id"`
}

// Detail handles GET /services/{id}.
func (h *ServiceHandlers) Detail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	l, err := h.services.GetListing(ctx, id)
	if err != nil {
		if errors.Is(err, listing.ErrServiceNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Service not found")
			return
		}
		slog.ErrorContext(ctx, "failed to load service", "error", err, "service_id", id)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load service")
		return
	}
	writeJSON(w, ctx, http.StatusOK, l)
}

// Checkout handles POST /services/{id}/checkout: it opens a Stripe Checkout
// Session for the service and records it as pending.
func (h *ServiceHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID := middleware.GetUserID(ctx)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	svc, err := h.services.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, listing.ErrServiceNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Service not found")
			return
		}
		slog.ErrorContext(ctx, "failed to load service", "error", err, "service_id", id)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load service")
		return
	}
	if svc.OwnerID == buyerID {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "You cannot buy your own service")
		return
	}

	amount, err := payment.AmountFromPrice(svc.Price)
	if err != nil {
		slog.ErrorContext(ctx, "service has unpayable price", "service_id", id, "price", svc.Price)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Service price is invalid")
		return
	}

	sess, err := h.stripe.CreateCheckoutSession(ctx, &payment.CheckoutSessionParams{
		ServiceID: svc.ID,
		BuyerID:   buyerID,
		Title:     svc.Title,
		Amount:    amount,
		BaseURL:   h.baseURL,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create checkout session", "error", err, "service_id", id)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodePaymentFailed, "Failed to start checkout")
		return
	}

	record := &payment.PaymentRecord{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Amount:    amount,
		Currency:  payment.Currency,
		BuyerID:   buyerID,
		ServiceID: svc.ID,
	}
	if err := h.payments.CreatePending(ctx, record); err != nil {
		slog.ErrorContext(ctx, "failed to record payment", "error", err, "session_id", sess.ID)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record payment")
		return
	}

	slog.InfoContext(ctx, "checkout session created", "session_id", sess.ID, "service_id", svc.ID, "amount", amount)
	writeJSON(w, ctx, http.StatusOK, CheckoutResponse{SessionURL: sess.URL, SessionID: sess.ID})
}

// Success handles GET /success?session_id= and marks the payment succeeded.
// The webhook is authoritative; this only shortens the wait for the buyer.
func (h *ServiceHandlers) Success(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "session_id is required")
		return
	}

	record, err := h.payments.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentRecordNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Payment not found")
			return
		}
		slog.ErrorContext(ctx, "failed to load payment", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load payment")
		return
	}
	if record.BuyerID != middleware.GetUserID(ctx) {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Payment not found")
		return
	}

	updated, err := h.payments.SetStatus(ctx, sessionID, payment.StatusSucceeded)
	switch {
	case err == nil:
		record = updated
	case errors.Is(err, payment.ErrInvalidTransition):
		// Already finished, e.g. expired before the buyer returned.
	default:
		slog.ErrorContext(ctx, "failed to update payment", "error", err, "session_id", sessionID)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update payment")
		return
	}
	writeJSON(w, ctx, http.StatusOK, record)
}

// Cancel handles GET /cancel?service_id= and cancels the caller's latest pending payment for the service.
func (h *ServiceHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceID, err := strconv.ParseInt(r.URL.Query().Get("service_id"), 10, 64)
	if err != nil || serviceID <= 0 {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "service_id is required")
		return
	}

	_, err = h.payments.CancelLatestPending(ctx, serviceID, middleware.GetUserID(ctx))
	if err != nil && !errors.Is(err, payment.ErrPaymentRecordNotFound) {
		slog.ErrorContext(ctx, "failed to cancel payment", "error", err, "service_id", serviceID)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to cancel payment")
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]any{"service_id": serviceID, "canceled": err == nil})
}
