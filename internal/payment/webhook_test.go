package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header: t=timestamp,v1=hmac.
func signPayload(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(t *testing.T, id, eventType, sessionID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":     sessionID,
				"object": "checkout.session",
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		eventType   string
		wantStatus  string
		wantSession string
	}{
		{EventCheckoutCompleted, StatusSucceeded, "cs_test_1"},
		{EventCheckoutExpired, StatusCanceled, "cs_test_1"},
		{"payment_intent.created", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			body := eventPayload(t, "evt_1", tt.eventType, "cs_test_1")
			sig := signPayload(body, testWebhookSecret, time.Now().Unix())

			event, err := ParseWebhook(body, sig, testWebhookSecret)
			if err != nil {
				t.Fatalf("ParseWebhook failed: %v", err)
			}
			if event.ID != "evt_1" || event.Type != tt.eventType {
				t.Errorf("unexpected event %+v", event)
			}
			if event.Status() != tt.wantStatus {
				t.Errorf("Status() = %q, want %q", event.Status(), tt.wantStatus)
			}
			if event.SessionID != tt.wantSession {
				t.Errorf("SessionID = %q, want %q", event.SessionID, tt.wantSession)
			}
		})
	}
}

func TestParseWebhook_InvalidSignature(t *testing.T) {
	body := eventPayload(t, "evt_1", EventCheckoutCompleted, "cs_1")
	now := time.Now().Unix()

	tests := []struct {
		name string
		sig  string
	}{
		{"empty", ""},
		{"garbage", "t=1234567890,v1=invalidsignature"},
		{"wrong secret", signPayload(body, "whsec_other", now)},
		{"stale timestamp", signPayload(body, testWebhookSecret, now-3600)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWebhook(body, tt.sig, testWebhookSecret); !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestWebhookRepository_RecordEvent(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryWebhookRepository()

	if ok, _ := repo.HasProcessed(ctx, "evt_1"); ok {
		t.Error("event should not be processed yet")
	}
	if err := repo.RecordEvent(ctx, "evt_1", EventCheckoutCompleted); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	if ok, _ := repo.HasProcessed(ctx, "evt_1"); !ok {
		t.Error("event should be processed")
	}
	if err := repo.RecordEvent(ctx, "evt_1", EventCheckoutCompleted); !errors.Is(err, ErrEventAlreadyProcessed) {
		t.Errorf("expected ErrEventAlreadyProcessed, got %v", err)
	}
}

func TestWebhookRepository_ConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryWebhookRepository()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.RecordEvent(ctx, "evt_race", EventCheckoutCompleted); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one success, got %d", successes)
	}
}
