package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/onnwee/freelancehub/internal/idempotency"
)

func newIdempotentHandler(repo idempotency.Repository, calls *int32, status int) http.Handler {
	return Idempotency(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + string(rune('0'+n)) + `}`))
	}))
}

func idempotentRequest(userID int64, path, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req.WithContext(SetUser(req.Context(), userID, "u"))
}

func TestIdempotency_Replay(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	var calls int32
	handler := newIdempotentHandler(repo, &calls, http.StatusOK)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(1, "/services/5/checkout", "k1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest(1, "/services/5/checkout", "k1"))

	if calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("replayed body %q != original %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get(IdempotentReplayHeader) != "true" {
		t.Error("expected replay header")
	}
}

func TestIdempotency_ScopedPerUser(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	var calls int32
	handler := newIdempotentHandler(repo, &calls, http.StatusOK)

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, "/services/5/checkout", "k1"))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(2, "/services/5/checkout", "k1"))

	if calls != 2 {
		t.Errorf("expected handler to run for each user, ran %d times", calls)
	}
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	var calls int32
	handler := newIdempotentHandler(repo, &calls, http.StatusOK)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, "/services/5/checkout", ""))
	}
	if calls != 2 {
		t.Errorf("expected 2 calls without a key, got %d", calls)
	}
}

func TestIdempotency_ErrorsNotStored(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	var calls int32
	handler := newIdempotentHandler(repo, &calls, http.StatusBadGateway)

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, "/services/5/checkout", "k1"))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, "/services/5/checkout", "k1"))

	if calls != 2 {
		t.Errorf("failed responses must not be replayed, handler ran %d times", calls)
	}
	if _, err := repo.Get(context.Background(), 1, "k1"); err != idempotency.ErrKeyNotFound {
		t.Errorf("expected no stored key, got %v", err)
	}
}

func TestIdempotency_KeyReusedOnOtherRoute(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	var calls int32
	handler := newIdempotentHandler(repo, &calls, http.StatusOK)

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(1, "/services/5/checkout", "k1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, idempotentRequest(1, "/services/6/checkout", "k1"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rr.Code)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestIdempotency_InvalidKey(t *testing.T) {
	repo := idempotency.NewInMemoryRepository()
	var calls int32
	handler := newIdempotentHandler(repo, &calls, http.StatusOK)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, idempotentRequest(1, "/services/5/checkout", strings.Repeat("k", 65)))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_idempotency_key") {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
	if calls != 0 {
		t.Error("handler should not run")
	}
}
