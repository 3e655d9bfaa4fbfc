package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/freelancehub/internal/payment"
)

// maxWebhookBody matches the size Stripe documents as the event payload limit.
const maxWebhookBody = 65536

// WebhookHandlers processes Stripe webhook events.
type WebhookHandlers struct {
	webhookSecret string
	payments      payment.Repository
	events        payment.WebhookRepository
}

// NewWebhookHandlers creates the webhook handlers.
func NewWebhookHandlers(webhookSecret string, payments payment.Repository, events payment.WebhookRepository) *WebhookHandlers {
	return &WebhookHandlers{webhookSecret: webhookSecret, payments: payments, events: events}
}

// HandleStripeWebhook handles POST /internal/stripe. Each event ID is applied at most once.
// Events for unknown sessions are acknowledged so Stripe stops retrying them.
func (h *WebhookHandlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webhookSecret == "" {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Webhooks are not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body")
		return
	}
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Missing Stripe-Signature header")
		return
	}

	event, err := payment.ParseWebhook(body, signature, h.webhookSecret)
	if err != nil {
		slog.WarnContext(ctx, "rejected stripe webhook", "error", err)
		if errors.Is(err, payment.ErrInvalidSignature) {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid signature")
			return
		}
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid event payload")
		return
	}

	processed, err := h.events.HasProcessed(ctx, event.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check webhook event", "error", err, "event_id", event.ID)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to process event")
		return
	}
	if processed {
		slog.InfoContext(ctx, "duplicate stripe webhook ignored", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if status := event.Status(); status != "" {
		_, err := h.payments.SetStatus(ctx, event.SessionID, status)
		switch {
		case err == nil:
			slog.InfoContext(ctx, "payment status updated", "session_id", event.SessionID, "status", status, "event_id", event.ID)
		case errors.Is(err, payment.ErrPaymentRecordNotFound), errors.Is(err, payment.ErrInvalidTransition):
			slog.WarnContext(ctx, "webhook did not change payment", "error", err, "session_id", event.SessionID, "event_id", event.ID)
		default:
			slog.ErrorContext(ctx, "failed to update payment", "error", err, "session_id", event.SessionID)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to process event")
			return
		}
	}

	if err := h.events.RecordEvent(ctx, event.ID, event.Type); err != nil && !errors.Is(err, payment.ErrEventAlreadyProcessed) {
		slog.ErrorContext(ctx, "failed to record webhook event", "error", err, "event_id", event.ID)
	}
	w.WriteHeader(http.StatusOK)
}
