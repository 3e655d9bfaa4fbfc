package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/freelancehub/internal/auth"
)

type stubValidator struct {
	claims *auth.Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (*auth.Claims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", "")
	token, err := jwtService.GenerateSessionToken(42, "alice")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	tests := []struct {
		name       string
		validator  TokenValidator
		setup      func(r *http.Request)
		wantStatus int
		wantReason string
	}{
		{
			name:       "bearer token",
			validator:  jwtService,
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "session cookie",
			validator:  jwtService,
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token}) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing",
			validator:  jwtService,
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantReason: "missing",
		},
		{
			name:       "non-bearer scheme",
			validator:  jwtService,
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			wantStatus: http.StatusUnauthorized,
			wantReason: "missing",
		},
		{
			name:       "garbage token",
			validator:  jwtService,
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") },
			wantStatus: http.StatusUnauthorized,
			wantReason: "invalid",
		},
		{
			name:       "expired",
			validator:  stubValidator{err: auth.ErrExpiredToken},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer x") },
			wantStatus: http.StatusUnauthorized,
			wantReason: "expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := NewMetrics()
			var gotID int64
			var gotName string
			handler := RequireAuth(tt.validator, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID = GetUserID(r.Context())
				gotName = GetUsername(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/buyer", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if gotID != 42 || gotName != "alice" {
					t.Errorf("expected user 42/alice, got %d/%q", gotID, gotName)
				}
				return
			}
			if got := testutil.ToFloat64(metrics.authFailures.WithLabelValues(tt.wantReason)); got != 1 {
				t.Errorf("expected one %s failure, got %v", tt.wantReason, got)
			}
		})
	}
}

func TestNoCache(t *testing.T) {
	handler := NoCache(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"Cache-Control": "no-cache, no-store, must-revalidate",
		"Pragma":        "no-cache",
		"Expires":       "0",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
