package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"
)

func TestServiceImageKey(t *testing.T) {
	now := time.Unix(1700000000, 0)
	key := ServiceImageKey(now)

	pattern := regexp.MustCompile(`^services/1700000000_[0-9a-f-]{36}\.jpg$`)
	if !pattern.MatchString(key) {
		t.Errorf("unexpected key %q", key)
	}
	if key == ServiceImageKey(now) {
		t.Error("keys should be unique")
	}
}

func TestResumeKey(t *testing.T) {
	key := ResumeKey(42, time.Unix(1700000000, 0), "p/d.f")
	pattern := regexp.MustCompile(`^resumes/42/1700000000_[0-9a-f-]{36}\.pdf$`)
	if !pattern.MatchString(key) {
		t.Errorf("unexpected key %q", key)
	}
}

func TestNewS3Store_Validation(t *testing.T) {
	valid := S3Config{
		BucketName:      "bucket",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "https://account.r2.cloudflarestorage.com/",
	}

	tests := []struct {
		name   string
		mutate func(*S3Config)
	}{
		{"missing bucket", func(c *S3Config) { c.BucketName = "" }},
		{"missing access key", func(c *S3Config) { c.AccessKeyID = "" }},
		{"missing secret", func(c *S3Config) { c.SecretAccessKey = "" }},
		{"missing endpoint", func(c *S3Config) { c.Endpoint = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewS3Store(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	store, err := NewS3Store(valid)
	if err != nil {
		t.Fatalf("NewS3Store failed: %v", err)
	}
	if store.publicURL != "https://account.r2.cloudflarestorage.com/bucket" {
		t.Errorf("unexpected public URL %q", store.publicURL)
	}

	valid.PublicURL = "https://cdn.example.com/"
	store, _ = NewS3Store(valid)
	if store.publicURL != "https://cdn.example.com" {
		t.Errorf("unexpected public URL %q", store.publicURL)
	}
}

func TestS3Store_Put(t *testing.T) {
	var gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewS3Store(S3Config{
		BucketName:      "bucket",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        srv.URL,
	})
	if err != nil {
		t.Fatalf("NewS3Store failed: %v", err)
	}

	url, err := store.Put(context.Background(), "services/1_abc.jpg", []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if gotPath != "/bucket/services/1_abc.jpg" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if gotType != "image/jpeg" {
		t.Errorf("unexpected content type %q", gotType)
	}
	if url != srv.URL+"/bucket/services/1_abc.jpg" {
		t.Errorf("unexpected URL %q", url)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore("/uploads/")
	url, err := store.Put(context.Background(), "services/1_abc.jpg", []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if url != "/uploads/services/1_abc.jpg" {
		t.Errorf("unexpected URL %q", url)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 object, got %d", store.Len())
	}

	rec := httptest.NewRecorder()
	store.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "img" || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("unexpected response %d %q %q", rec.Code, rec.Body.String(), rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	store.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/missing.jpg", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	store.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, url, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
