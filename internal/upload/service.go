// Package upload stores service images and resume archives in object storage.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by MemoryStore for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// Store writes objects and returns the URL they are served from.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ServiceImageKey returns the key for a sanitized service image.
// Pattern: services/{unix-timestamp}_{uuid}.jpg
func ServiceImageKey(now time.Time) string {
	return fmt.Sprintf("services/%d_%s.jpg", now.Unix(), uuid.New().String())
}

// ResumeKey returns the key for an archived resume file.
// Pattern: resumes/{userID}/{unix-timestamp}_{uuid}.{ext}
func ResumeKey(userID int64, now time.Time, ext string) string {
	return fmt.Sprintf("resumes/%d/%d_%s.%s", userID, now.Unix(), uuid.New().String(), sanitizePathComponent(ext))
}

// sanitizePathComponent keeps only alphanumerics, hyphens and underscores.
func sanitizePathComponent(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// S3Config holds configuration for an S3-compatible bucket (AWS, R2, MinIO).
type S3Config struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	// PublicURL prefixes object keys in returned URLs; defaults to {Endpoint}/{BucketName}.
	PublicURL string
}

// S3Store writes objects to an S3-compatible bucket.
type S3Store struct {
	client     *s3.Client
	bucketName string
	publicURL  string
}

// NewS3Store creates an S3Store with path-style addressing.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.BucketName
	}

	return &S3Store{
		client:     client,
		bucketName: cfg.BucketName,
		publicURL:  strings.TrimRight(publicURL, "/"),
	}, nil
}

// Put uploads data under key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}

// HealthCheck verifies the bucket is reachable.
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	if err != nil {
		return fmt.Errorf("bucket %s unreachable: %w", s.bucketName, err)
	}
	return nil
}

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in memory and serves them over HTTP under its prefix.
// It backs development runs without a bucket.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	prefix  string
}

// NewMemoryStore creates a MemoryStore whose URLs start with prefix, e.g. "/uploads".
func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		prefix:  strings.TrimRight(prefix, "/"),
	}
}

// Put stores a copy of data.
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return s.prefix + "/" + key, nil
}

// Get returns a stored object.
func (s *MemoryStore) Get(key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	return obj.data, obj.contentType, nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ServeHTTP serves GET {prefix}/{key}.
func (s *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, s.prefix), "/")
	data, contentType, err := s.Get(key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}
