package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/freelancehub/internal/auth"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/user"
	"github.com/onnwee/freelancehub/internal/validate"
)

// TokenIssuer issues session tokens.
type TokenIssuer interface {
	GenerateSessionToken(userID int64, username string) (string, error)
	Expiry() time.Duration
}

// AuthHandlers serves registration, login and logout.
type AuthHandlers struct {
	users        user.Repository
	tokens       TokenIssuer
	secureCookie bool
}

// NewAuthHandlers creates the auth handlers. secureCookie marks the session cookie Secure.
func NewAuthHandlers(users user.Repository, tokens TokenIssuer, secureCookie bool) *AuthHandlers {
	return &AuthHandlers{users: users, tokens: tokens, secureCookie: secureCookie}
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token for clients that do not use cookies.
type LoginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

// Register handles POST /register. New accounts can both buy and sell.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	username, err := validate.Username(req.Username)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid username: "+err.Error())
		return
	}
	if err := validate.Password(req.Password); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid password: "+err.Error())
		return
	}
	if req.Confirmation != req.Password {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Passwords do not match")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash password", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create account")
		return
	}

	u := &user.User{
		Username:     username,
		PasswordHash: hash,
		IsBuyer:      true,
		IsSeller:     true,
	}
	if err := h.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Username already taken")
			return
		}
		slog.ErrorContext(ctx, "failed to create user", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create account")
		return
	}

	slog.InfoContext(ctx, "user registered", "user_id", u.ID)
	writeJSON(w, ctx, http.StatusCreated, u)
}

// Login handles POST /login. The token is set as an HttpOnly cookie and returned in the body.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Username and password are required")
		return
	}

	u, err := h.users.GetByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		slog.ErrorContext(ctx, "failed to load user", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to log in")
		return
	}
	if u == nil || auth.CheckPassword(u.PasswordHash, req.Password) != nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid username and/or password")
		return
	}

	token, err := h.tokens.GenerateSessionToken(u.ID, u.Username)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue session token", "error", err, "user_id", u.ID)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to log in")
		return
	}

	expiresAt := time.Now().Add(h.tokens.Expiry())
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	middleware.SetUser(ctx, u.ID, u.Username)
	writeJSON(w, ctx, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, User: u})
}

// Logout handles POST /logout by expiring the session cookie.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
