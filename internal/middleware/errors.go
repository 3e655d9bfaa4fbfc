package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

// Error codes written by middleware. They share the API's error envelope.
const (
	errCodeAuthFailed            = "auth_failed"
	errCodeRateLimited           = "rate_limited"
	errCodeInvalidIdempotencyKey = "invalid_idempotency_key"
	errCodeIdempotencyKeyReused  = "idempotency_key_reused"
)

// writeError writes {"error":{"code","message"}} and records the code for Logging.
func writeError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	SetErrorCode(ctx, code)

	body, _ := json.Marshal(map[string]map[string]string{
		"error": {"code": code, "message": message},
	})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
