package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/search", "/search"},
		{"/buyer", "/buyer"},
		{"/services/12", "/services/{id}"},
		{"/services/12/checkout", "/services/{id}/checkout"},
		{"/chat/7", "/chat/{id}"},
		{"/conversations/3/messages", "/conversations/{id}/messages"},
		{"/conversations/3/ws", "/conversations/{id}/ws"},
		{"/api/conversations", "/api/conversations"},
		{"/services/abc", "/services/abc"},
		{"/uploads/services/1700000000_abc.jpg", "/uploads/*"},
		{"/static/default_image.png", "/static/*"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHTTPMetrics_Records(t *testing.T) {
	metrics := NewMetrics()
	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/services/1", "/services/2", "/health"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, path, nil))
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("PUT", "/services/{id}", "201")); got != 2 {
		t.Errorf("expected 2 requests recorded, got %v", got)
	}
	if got := testutil.CollectAndCount(metrics.httpRequestsTotal); got != 1 {
		t.Errorf("expected a single label set, got %d", got)
	}
}

func TestTracing_SpanName(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	traceIDs := make(map[string]string)
	handler := Tracing("test-service")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceIDs[r.URL.Path] = GetTraceID(r)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/conversations/9/messages", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span (health filtered), got %d", len(spans))
	}
	if spans[0].Name() != "POST /conversations/{id}/messages" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if traceIDs["/conversations/9/messages"] != spans[0].SpanContext().TraceID().String() {
		t.Error("handler did not see the request span")
	}
	if traceIDs["/health"] != "" {
		t.Errorf("expected no trace for /health, got %q", traceIDs["/health"])
	}
}

func TestCORS(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://app.example.com"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"same origin", http.MethodGet, "", http.StatusOK, ""},
		{"allowed", http.MethodGet, "https://app.example.com", http.StatusOK, "https://app.example.com"},
		{"preflight", http.MethodOptions, "https://app.example.com", http.StatusNoContent, "https://app.example.com"},
		{"disallowed", http.MethodGet, "https://evil.example.com", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/search", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestCORS_DisabledWithoutOrigins(t *testing.T) {
	handler := CORS(DefaultCORSConfig(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected passthrough, got %d %v", rr.Code, rr.Header())
	}
}
