package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/freelancehub/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader is set on responses served from the idempotency store.
const IdempotentReplayHeader = "Idempotent-Replayed"

type idempotencyKeyContextKey struct{}

// idempotencyResponseWriter tees the response so it can be stored.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

// GetIdempotencyKey retrieves the idempotency key from context. Returns empty string if not present.
func GetIdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyContextKey{}).(string); ok {
		return key
	}
	return ""
}

// Idempotency replays the stored 2xx response when an authenticated caller repeats
// an Idempotency-Key. Requests without the header pass through untouched.
// It must run inside RequireAuth because keys are scoped per user.
func Idempotency(repo idempotency.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if err := idempotency.ValidateKey(key); err != nil {
				msg := "Invalid Idempotency-Key"
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					msg = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				writeError(w, ctx, http.StatusBadRequest, errCodeInvalidIdempotencyKey, msg)
				return
			}

			userID := GetUserID(ctx)
			ctx = context.WithValue(ctx, idempotencyKeyContextKey{}, key)
			r = r.WithContext(ctx)

			existing, err := repo.Get(ctx, userID, key)
			switch {
			case err == nil:
				if existing.Route != r.URL.Path || existing.Method != r.Method {
					writeError(w, ctx, http.StatusUnprocessableEntity, errCodeIdempotencyKeyReused,
						"Idempotency-Key was already used for a different request")
					return
				}
				slog.InfoContext(ctx, "replaying idempotent response", "key", key, "status", existing.ResponseStatusCode)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set(IdempotentReplayHeader, "true")
				w.WriteHeader(existing.ResponseStatusCode)
				_, _ = w.Write([]byte(existing.ResponseBody))
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				slog.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			capture := &idempotencyResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				return
			}
			body := capture.body.String()
			record := &idempotency.IdempotencyKey{
				Key:                key,
				UserID:             userID,
				Method:             r.Method,
				Route:              r.URL.Path,
				ResponseHash:       idempotency.ComputeResponseHash(body),
				Status:             idempotency.StatusCompleted,
				ResponseBody:       body,
				ResponseStatusCode: capture.statusCode,
			}
			if err := repo.Store(ctx, record); err != nil {
				slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
			}
		})
	}
}
