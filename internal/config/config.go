// Package config loads API server configuration from an optional YAML file,
// overridden by environment variables, using koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/onnwee/freelancehub/internal/validate"
)

// Config holds all configuration values for the API server.
type Config struct {
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Empty DatabaseURL runs on in-memory stores.
	DatabaseURL string `koanf:"database_url"`
	// Empty RedisURL disables the shared cache and rate limit store.
	RedisURL string `koanf:"redis_url"`

	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	StripeAPIKey        string `koanf:"stripe_api_key"`
	StripeWebhookSecret string `koanf:"stripe_webhook_secret"`
	PublicBaseURL       string `koanf:"public_base_url"`

	// Empty EmbeddingURL uses the in-process hash embedder.
	EmbeddingURL             string  `koanf:"embedding_url"`
	EmbeddingModel           string  `koanf:"embedding_model"`
	EmbeddingDimension       int     `koanf:"embedding_dimension"`
	EmbeddingTimeoutMS       int     `koanf:"embedding_timeout_ms"`
	EmbeddingCacheSize       int     `koanf:"embedding_cache_size"`
	EmbeddingCacheTTLMinutes int     `koanf:"embedding_cache_ttl_minutes"`
	EmbeddingRPS             float64 `koanf:"embedding_rps"`
	WarmupSchedule           string  `koanf:"warmup_schedule"`

	// S3-compatible object storage. All or nothing; unset uses an in-memory store.
	S3BucketName      string `koanf:"s3_bucket_name"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3PublicURL       string `koanf:"s3_public_url"`

	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	TracingEnabled    bool    `koanf:"tracing_enabled"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrMissingStripeAPIKey      = errors.New("STRIPE_API_KEY is required")
	ErrMissingS3BucketName      = errors.New("S3_BUCKET_NAME is required")
	ErrMissingS3AccessKeyID     = errors.New("S3_ACCESS_KEY_ID is required")
	ErrMissingS3SecretAccessKey = errors.New("S3_SECRET_ACCESS_KEY is required")
	ErrMissingS3Endpoint        = errors.New("S3_ENDPOINT is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidNumber            = errors.New("value must be a valid number")
	ErrInvalidPublicBaseURL     = errors.New("PUBLIC_BASE_URL must be an http(s) base URL")
	ErrInvalidEmbeddingURL      = errors.New("EMBEDDING_URL must be an http(s) base URL")
	ErrInvalidEmbeddingSettings = errors.New("embedding dimension, timeout, cache size, cache TTL and rate must be positive")
	ErrInvalidWarmupSchedule    = errors.New("WARMUP_SCHEDULE must be a cron expression")
	ErrInvalidSampleRate        = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultEmbeddingModel           = "all-minilm"
	DefaultEmbeddingDimension       = 1024
	DefaultEmbeddingTimeoutMS       = 5000
	DefaultEmbeddingCacheSize       = 4096
	DefaultEmbeddingCacheTTLMinutes = 1440
	DefaultEmbeddingRPS             = 20.0
	DefaultWarmupSchedule           = "@every 10m"
	DefaultTracingExporter          = "otlp-http"
	DefaultTracingSampleRate        = 0.1
)

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values.
// It returns the config and every load or validation error found (empty if valid).
// An unreadable config file is returned as the only error with a nil config.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	intVal := func(envKey, koanfKey string, def int) int {
		v, err := getEnvIntOrDefault(envKey, k.Int(koanfKey), def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}
	floatVal := func(envKey, koanfKey string, def float64) float64 {
		v, err := getEnvFloatOrDefault(envKey, k, koanfKey, def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}

	port, portErr := getEnvIntOrDefaultMulti([]string{"FREELANCEHUB_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefaultMulti([]string{"FREELANCEHUB_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                 getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:                getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:        getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		StripeAPIKey:             getEnvOrKoanf("STRIPE_API_KEY", k, "stripe_api_key"),
		StripeWebhookSecret:      getEnvOrKoanf("STRIPE_WEBHOOK_SECRET", k, "stripe_webhook_secret"),
		PublicBaseURL:            getEnvOrKoanf("PUBLIC_BASE_URL", k, "public_base_url"),
		EmbeddingURL:             getEnvOrKoanf("EMBEDDING_URL", k, "embedding_url"),
		EmbeddingModel:           getEnvOrDefault("EMBEDDING_MODEL", k.String("embedding_model"), DefaultEmbeddingModel),
		EmbeddingDimension:       intVal("EMBEDDING_DIMENSION", "embedding_dimension", DefaultEmbeddingDimension),
		EmbeddingTimeoutMS:       intVal("EMBEDDING_TIMEOUT_MS", "embedding_timeout_ms", DefaultEmbeddingTimeoutMS),
		EmbeddingCacheSize:       intVal("EMBEDDING_CACHE_SIZE", "embedding_cache_size", DefaultEmbeddingCacheSize),
		EmbeddingCacheTTLMinutes: intVal("EMBEDDING_CACHE_TTL_MINUTES", "embedding_cache_ttl_minutes", DefaultEmbeddingCacheTTLMinutes),
		EmbeddingRPS:             floatVal("EMBEDDING_RPS", "embedding_rps", DefaultEmbeddingRPS),
		WarmupSchedule:           getEnvOrDefault("WARMUP_SCHEDULE", k.String("warmup_schedule"), DefaultWarmupSchedule),
		S3BucketName:             getEnvOrKoanf("S3_BUCKET_NAME", k, "s3_bucket_name"),
		S3AccessKeyID:            getEnvOrKoanf("S3_ACCESS_KEY_ID", k, "s3_access_key_id"),
		S3SecretAccessKey:        getEnvOrKoanf("S3_SECRET_ACCESS_KEY", k, "s3_secret_access_key"),
		S3Endpoint:               getEnvOrKoanf("S3_ENDPOINT", k, "s3_endpoint"),
		S3PublicURL:              getEnvOrKoanf("S3_PUBLIC_URL", k, "s3_public_url"),
		CORSAllowedOrigins:       getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		TracingEnabled:           getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		OTLPEndpoint:             getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingExporter:          getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingSampleRate:        floatVal("TRACING_SAMPLE_RATE", "tracing_sample_rate", DefaultTracingSampleRate),
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	errs := cfg.Validate()
	return cfg, append(loadErrs, errs...)
}

// EmbeddingTimeout is the per-search embedding deadline.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.EmbeddingTimeoutMS) * time.Millisecond
}

// EmbeddingCacheTTL is how long vectors live in Redis.
func (c *Config) EmbeddingCacheTTL() time.Duration {
	return time.Duration(c.EmbeddingCacheTTLMinutes) * time.Minute
}

// S3Enabled reports whether object storage is configured.
func (c *Config) S3Enabled() bool {
	return c.S3BucketName != "" || c.S3AccessKeyID != "" || c.S3SecretAccessKey != "" || c.S3Endpoint != ""
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti returns the first set env var among envKeys, else the koanf value, else the default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault parses an int env var. A zero koanf value falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidNumber)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault parses a float env var. Unlike ints, an explicit 0 in the
// file is honored, so a sample rate of 0 can be configured.
func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidNumber)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return k.Bool(koanfKey)
}

// getEnvListOrKoanf reads a comma-separated env var or a YAML list.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// Validate checks required values and ranges. Returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.StripeAPIKey == "" {
		errs = append(errs, ErrMissingStripeAPIKey)
	}

	if base, err := validate.BaseURL(c.PublicBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidPublicBaseURL, err))
	} else {
		c.PublicBaseURL = base
	}
	if c.EmbeddingURL != "" {
		if base, err := validate.BaseURL(c.EmbeddingURL); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidEmbeddingURL, err))
		} else {
			c.EmbeddingURL = base
		}
	}

	if c.EmbeddingDimension <= 0 || c.EmbeddingTimeoutMS <= 0 || c.EmbeddingCacheSize <= 0 ||
		c.EmbeddingCacheTTLMinutes <= 0 || c.EmbeddingRPS <= 0 {
		errs = append(errs, ErrInvalidEmbeddingSettings)
	}
	if _, err := cron.ParseStandard(c.WarmupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidWarmupSchedule, err))
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}

	if c.S3Enabled() {
		if c.S3BucketName == "" {
			errs = append(errs, ErrMissingS3BucketName)
		}
		if c.S3AccessKeyID == "" {
			errs = append(errs, ErrMissingS3AccessKeyID)
		}
		if c.S3SecretAccessKey == "" {
			errs = append(errs, ErrMissingS3SecretAccessKey)
		}
		if c.S3Endpoint == "" {
			errs = append(errs, ErrMissingS3Endpoint)
		}
	}

	return errs
}

// LogSummary returns the configuration with secrets masked, for startup logs.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                        strconv.Itoa(c.Port),
		"env":                         c.Env,
		"database_url":                maskDatabaseURL(c.DatabaseURL),
		"redis_url":                   maskDatabaseURL(c.RedisURL),
		"jwt_secret":                  maskSecret(c.JWTSecret),
		"jwt_previous_secret":         maskSecret(c.JWTPreviousSecret),
		"stripe_api_key":              maskStripeKey(c.StripeAPIKey),
		"stripe_webhook_secret":       maskSecret(c.StripeWebhookSecret),
		"public_base_url":             c.PublicBaseURL,
		"embedding_url":               orNotSet(c.EmbeddingURL),
		"embedding_model":             c.EmbeddingModel,
		"embedding_dimension":         strconv.Itoa(c.EmbeddingDimension),
		"embedding_timeout_ms":        strconv.Itoa(c.EmbeddingTimeoutMS),
		"embedding_cache_size":        strconv.Itoa(c.EmbeddingCacheSize),
		"embedding_cache_ttl_minutes": strconv.Itoa(c.EmbeddingCacheTTLMinutes),
		"embedding_rps":               strconv.FormatFloat(c.EmbeddingRPS, 'f', -1, 64),
		"warmup_schedule":             c.WarmupSchedule,
		"s3_bucket_name":              orNotSet(c.S3BucketName),
		"s3_access_key_id":            maskSecret(c.S3AccessKeyID),
		"s3_secret_access_key":        maskSecret(c.S3SecretAccessKey),
		"s3_endpoint":                 orNotSet(c.S3Endpoint),
		"cors_allowed_origins":        strings.Join(c.CORSAllowedOrigins, ","),
		"tracing_enabled":             strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":            c.TracingExporter,
		"tracing_sample_rate":         strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// maskSecret shows the first 4 characters of secrets of 8 or more characters.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskStripeKey keeps the sk_live_/sk_test_ prefix.
func maskStripeKey(s string) string {
	if s == "" {
		return "<not set>"
	}
	parts := strings.SplitN(s, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + parts[1] + "_****"
	}
	return maskSecret(s)
}

// maskDatabaseURL masks the password in a postgres:// or redis:// URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s
	}
	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}
	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
