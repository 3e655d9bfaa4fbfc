package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stripe/stripe-go/v81"

	"github.com/onnwee/freelancehub/internal/auth"
	"github.com/onnwee/freelancehub/internal/chat"
	"github.com/onnwee/freelancehub/internal/embedding"
	"github.com/onnwee/freelancehub/internal/idempotency"
	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/payment"
	"github.com/onnwee/freelancehub/internal/ranking"
	"github.com/onnwee/freelancehub/internal/upload"
	"github.com/onnwee/freelancehub/internal/user"
)

const (
	testJWTSecret     = "test-secret-that-is-long-enough-000"
	testWebhookSecret = "whsec_test_secret"
	testPassword      = "secret123"
	testBaseURL       = "https://market.example.com"
)

// fakeStripe records checkout requests and returns numbered sessions.
type fakeStripe struct {
	mu    sync.Mutex
	calls []payment.CheckoutSessionParams
	err   error
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, params *payment.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, *params)
	id := fmt.Sprintf("cs_test_%d", len(f.calls))
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

func (f *fakeStripe) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSanitizer stands in for the libvips processor.
type fakeSanitizer struct {
	err   error
	calls int
}

func (f *fakeSanitizer) Sanitize(r io.Reader) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return append([]byte("jpeg:"), data[:min(len(data), 8)]...), nil
}

// stubRanker fails every ranking call with err.
type stubRanker struct{ err error }

func (s stubRanker) Search(context.Context, []listing.Listing, string) ([]ranking.Result, error) {
	return nil, s.err
}

func (s stubRanker) Recommend(context.Context, []listing.Listing, []string) ([]listing.Listing, error) {
	return nil, s.err
}

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testAPI struct {
	handler  http.Handler
	users    *user.InMemoryRepository
	services *listing.InMemoryRepository
	payments *payment.InMemoryRepository
	hub      *chat.Hub
	storage  *upload.MemoryStore
	stripe   *fakeStripe
	images   *fakeSanitizer
	jwt      *auth.JWTService
}

// newTestAPI wires the router to in-memory stores and the hash embedder.
func newTestAPI(t *testing.T, opts ...func(*RouterConfig)) *testAPI {
	t.Helper()

	users := user.NewInMemoryRepository()
	services := listing.NewInMemoryRepository(users)
	hub := chat.NewHub()
	a := &testAPI{
		users:    users,
		services: services,
		payments: payment.NewInMemoryRepository(),
		hub:      hub,
		storage:  upload.NewMemoryStore("/uploads"),
		stripe:   &fakeStripe{},
		images:   &fakeSanitizer{},
		jwt:      auth.NewJWTService(testJWTSecret, ""),
	}

	cfg := RouterConfig{
		Users:               users,
		Services:            services,
		Listings:            services,
		Chat:                chat.NewService(chat.NewInMemoryRepository(), users, services, hub),
		Hub:                 hub,
		Payments:            a.payments,
		Webhooks:            payment.NewInMemoryWebhookRepository(),
		Idempotency:         idempotency.NewInMemoryRepository(),
		Stripe:              a.stripe,
		Ranker:              ranking.NewEngine(embedding.NewHashEmbedder(256)),
		Images:              a.images,
		Storage:             a.storage,
		Tokens:              a.jwt,
		PublicBaseURL:       testBaseURL,
		StripeWebhookSecret: testWebhookSecret,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		RateLimitStores: func(string) middleware.RateLimitStore {
			return middleware.NewInMemoryRateLimitStore()
		},
		UploadsHandler: a.storage,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	a.handler = NewRouter(cfg)
	return a
}

// signup creates an account directly and returns its ID and a session token.
func (a *testAPI) signup(t *testing.T, username string) (int64, string) {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &user.User{Username: username, PasswordHash: hash, IsBuyer: true, IsSeller: true}
	if err := a.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	token, err := a.jwt.GenerateSessionToken(u.ID, u.Username)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return u.ID, token
}

// addService inserts a service owned by ownerID.
func (a *testAPI) addService(t *testing.T, ownerID int64, title, description, tag string, price float64) *listing.Service {
	t.Helper()
	svc := &listing.Service{OwnerID: ownerID, Title: title, Description: description, Tag: tag, Price: price}
	if err := a.services.Insert(context.Background(), svc); err != nil {
		t.Fatalf("insert service: %v", err)
	}
	return svc
}

// do sends a request through the full middleware chain.
func (a *testAPI) do(method, path, token string, body io.Reader, contentType string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

// doJSON sends v as a JSON body.
func (a *testAPI) doJSON(t *testing.T, method, path, token string, v any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return a.do(method, path, token, body, "application/json", headers...)
}

// formFile is a file part of a multipart body.
type formFile struct {
	field, name string
	data        []byte
}

// multipartBody encodes fields and files and returns the body with its content type.
func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// decode unmarshals the recorder body into T.
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v, body: %s", v, err, w.Body.String())
	}
	return v
}

// assertError checks the status and error code of a response.
func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, status, w.Body.String())
	}
	resp := decode[ErrorResponse](t, w)
	if resp.Error.Code != code {
		t.Errorf("error code = %q, want %q", resp.Error.Code, code)
	}
}

var errRankingDown = fmt.Errorf("%w: connection refused", ranking.ErrEmbeddingUnavailable)

// httpRequestWithCookie builds a request authenticated by the session cookie.
func httpRequestWithCookie(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
