package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/user"
)

func TestRegister(t *testing.T) {
	a := newTestAPI(t)

	w := a.doJSON(t, http.MethodPost, "/register", "", RegisterRequest{
		Username: "alice", Password: testPassword, Confirmation: testPassword,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("response leaks password hash: %s", w.Body.String())
	}

	created := decode[user.User](t, w)
	if created.ID == 0 || created.Username != "alice" || !created.IsBuyer || !created.IsSeller {
		t.Errorf("created = %+v, want buyer and seller alice", created)
	}

	stored, err := a.users.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == testPassword {
		t.Error("password was not hashed")
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  any
		code string
	}{
		{"missing username", RegisterRequest{Password: testPassword, Confirmation: testPassword}, ErrCodeValidation},
		{"invalid username", RegisterRequest{Username: "a b", Password: testPassword, Confirmation: testPassword}, ErrCodeValidation},
		{"missing password", RegisterRequest{Username: "alice"}, ErrCodeValidation},
		{"short password", RegisterRequest{Username: "alice", Password: "abc", Confirmation: "abc"}, ErrCodeValidation},
		{"mismatch", RegisterRequest{Username: "alice", Password: testPassword, Confirmation: "different1"}, ErrCodeValidation},
		{"not json", "just a string", ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			w := a.doJSON(t, http.MethodPost, "/register", "", tt.req)
			assertError(t, w, http.StatusBadRequest, tt.code)
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	a := newTestAPI(t)
	a.signup(t, "alice")

	w := a.doJSON(t, http.MethodPost, "/register", "", RegisterRequest{
		Username: "alice", Password: testPassword, Confirmation: testPassword,
	})
	assertError(t, w, http.StatusConflict, ErrCodeConflict)
}

func TestLogin(t *testing.T) {
	a := newTestAPI(t)
	id, _ := a.signup(t, "alice")

	w := a.doJSON(t, http.MethodPost, "/login", "", LoginRequest{Username: "alice", Password: testPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	resp := decode[LoginResponse](t, w)
	claims, err := a.jwt.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if got, _ := claims.UserID(); got != id || claims.Username != "alice" {
		t.Errorf("claims = %d/%s, want %d/alice", got, claims.Username, id)
	}

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			session = c
		}
	}
	if session == nil {
		t.Fatal("session cookie not set")
	}
	if !session.HttpOnly || session.Value != resp.Token {
		t.Errorf("cookie = %+v, want HttpOnly with the issued token", session)
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name   string
		req    LoginRequest
		status int
		code   string
	}{
		{"wrong password", LoginRequest{Username: "alice", Password: "wrong-password"}, http.StatusUnauthorized, ErrCodeAuthFailed},
		{"unknown user", LoginRequest{Username: "mallory", Password: testPassword}, http.StatusUnauthorized, ErrCodeAuthFailed},
		{"missing fields", LoginRequest{Username: "alice"}, http.StatusBadRequest, ErrCodeValidation},
	}

	a := newTestAPI(t)
	a.signup(t, "alice")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.doJSON(t, http.MethodPost, "/login", "", tt.req)
			assertError(t, w, tt.status, tt.code)
		})
	}
}

func TestLogout(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(http.MethodPost, "/logout", "", nil, "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != middleware.SessionCookieName || cookies[0].MaxAge >= 0 {
		t.Errorf("cookies = %+v, want an expired session cookie", cookies)
	}
}

func TestProtectedRoutes(t *testing.T) {
	a := newTestAPI(t)
	_, token := a.signup(t, "alice")

	routes := []struct{ method, path string }{
		{http.MethodGet, "/buyer"},
		{http.MethodGet, "/seller"},
		{http.MethodGet, "/search?query=logo"},
		{http.MethodGet, "/inbox"},
		{http.MethodGet, "/resume"},
		{http.MethodPost, "/services/1/checkout"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := a.do(rt.method, rt.path, "", nil, "")
			assertError(t, w, http.StatusUnauthorized, ErrCodeAuthFailed)
		})
	}

	t.Run("session cookie", func(t *testing.T) {
		req := httpRequestWithCookie(http.MethodGet, "/buyer", token)
		w := serve(a.handler, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200, body: %s", w.Code, w.Body.String())
		}
	})
}
