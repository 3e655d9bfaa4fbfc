package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    int64  `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func parseLogEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search", nil))

	entry := parseLogEntry(t, buf)
	if entry.Method != "GET" || entry.Path != "/search" {
		t.Errorf("unexpected method/path %s %s", entry.Method, entry.Path)
	}
	if entry.Status != 200 {
		t.Errorf("expected status 200, got %d", entry.Status)
	}
	if entry.Size != 5 {
		t.Errorf("expected size 5, got %d", entry.Size)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
	if entry.UserID != 0 || entry.ErrorCode != "" {
		t.Errorf("unexpected user/error fields: %+v", entry)
	}
}

func TestLogging_WithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := RequestID(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodGet, "/buyer", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if entry := parseLogEntry(t, buf); entry.RequestID != "req-123" {
		t.Errorf("expected request_id req-123, got %q", entry.RequestID)
	}
}

// TestLogging_InnerValues tests that values set on derived contexts reach the log line.
func TestLogging_InnerValues(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetUser(r.Context(), 42, "alice")
		ctx = SetErrorCode(ctx, "not_found")
		if GetUserID(ctx) != 42 || GetUsername(ctx) != "alice" {
			t.Errorf("user not readable from context")
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/services/9", nil))

	entry := parseLogEntry(t, buf)
	if entry.UserID != 42 {
		t.Errorf("expected user_id 42, got %d", entry.UserID)
	}
	if entry.ErrorCode != "not_found" {
		t.Errorf("expected error_code not_found, got %q", entry.ErrorCode)
	}
	if entry.Level != "WARN" {
		t.Errorf("expected WARN for 404, got %s", entry.Level)
	}
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusSeeOther, "INFO"},
		{http.StatusBadRequest, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			if entry := parseLogEntry(t, buf); entry.Level != tt.level {
				t.Errorf("expected %s, got %s", tt.level, entry.Level)
			}
		})
	}
}

// TestLogging_ErrorCodeOnlyOnErrors tests that success responses never carry error_code.
func TestLogging_ErrorCodeOnlyOnErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetErrorCode(r.Context(), "stale")
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if entry := parseLogEntry(t, buf); entry.ErrorCode != "" {
		t.Errorf("expected no error_code, got %q", entry.ErrorCode)
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got wrapper=%d recorder=%d", rw.statusCode, rec.Code)
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if GetUserID(ctx) != 0 || GetUsername(ctx) != "" || GetErrorCode(ctx) != "" || GetRequestID(ctx) != "" {
		t.Error("expected zero values from empty context")
	}
}
