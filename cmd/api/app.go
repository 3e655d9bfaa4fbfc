package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/freelancehub/internal/api"
	"github.com/onnwee/freelancehub/internal/auth"
	"github.com/onnwee/freelancehub/internal/chat"
	"github.com/onnwee/freelancehub/internal/config"
	"github.com/onnwee/freelancehub/internal/db"
	"github.com/onnwee/freelancehub/internal/embedding"
	"github.com/onnwee/freelancehub/internal/health"
	"github.com/onnwee/freelancehub/internal/idempotency"
	"github.com/onnwee/freelancehub/internal/image"
	"github.com/onnwee/freelancehub/internal/jobs"
	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/payment"
	"github.com/onnwee/freelancehub/internal/ranking"
	"github.com/onnwee/freelancehub/internal/upload"
	"github.com/onnwee/freelancehub/internal/user"
)

// idempotencyCleanupSchedule runs key expiry once an hour.
const idempotencyCleanupSchedule = "@hourly"

// serviceStore is the write side for sellers and the read side for ranking.
type serviceStore interface {
	listing.Repository
	listing.Store
}

// stores groups the repositories, backed by Postgres or memory.
type stores struct {
	users       user.Repository
	services    serviceStore
	chat        chat.Repository
	payments    payment.Repository
	webhooks    payment.WebhookRepository
	idempotency idempotency.Repository
}

// app is the assembled server and everything that must be released on shutdown.
type app struct {
	handler   http.Handler
	scheduler *jobs.Scheduler
	closers   []func() error
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}

// newApp builds the API from cfg. Without DATABASE_URL, REDIS_URL, EMBEDDING_URL or
// S3 settings it falls back to in-memory stores, the hash embedder and a memory bucket.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewMetrics()
	rankingMetrics := ranking.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, r := range []interface{ Register(prometheus.Registerer) error }{httpMetrics, rankingMetrics, jobMetrics} {
		if err := r.Register(reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	var healthCfg api.HealthHandlersConfig

	var database *sql.DB
	if cfg.DatabaseURL != "" {
		database, err = db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, database.Close)
		applied, err := db.Migrate(ctx, database)
		if err != nil {
			return nil, err
		}
		logger.Info("database ready", "migrations_applied", applied)
		healthCfg.DBChecker = health.NewDBChecker(database)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}
	repos := newStores(database)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		a.closers = append(a.closers, redisClient.Close)
		healthCfg.RedisChecker = health.NewRedisChecker(redisClient)
	}

	engine, err := newRankingEngine(cfg, logger, redisClient, rankingMetrics, &healthCfg)
	if err != nil {
		return nil, err
	}

	storage, uploads, err := newStorage(cfg, logger, &healthCfg)
	if err != nil {
		return nil, err
	}

	rateLimitStores := func(string) middleware.RateLimitStore { return middleware.NewInMemoryRateLimitStore() }
	if redisClient != nil {
		rateLimitStores = func(scope string) middleware.RateLimitStore {
			return middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics).WithPrefix("ratelimit:" + scope + ":")
		}
	}

	hub := chat.NewHub()
	a.handler = api.NewRouter(api.RouterConfig{
		Users:               repos.users,
		Services:            repos.services,
		Listings:            repos.services,
		Chat:                chat.NewService(repos.chat, repos.users, repos.services, hub),
		Hub:                 hub,
		Payments:            repos.payments,
		Webhooks:            repos.webhooks,
		Idempotency:         repos.idempotency,
		Stripe:              payment.NewStripeClient(cfg.StripeAPIKey),
		Ranker:              engine,
		Images:              image.NewProcessor(image.DefaultConfig()),
		Storage:             storage,
		Tokens:              auth.NewJWTService(cfg.JWTSecret, cfg.JWTPreviousSecret),
		Health:              healthCfg,
		PublicBaseURL:       cfg.PublicBaseURL,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		AllowedOrigins:      cfg.CORSAllowedOrigins,
		SecureCookies:       cfg.IsProduction(),
		Logger:              logger,
		RateLimitStores:     rateLimitStores,
		Metrics:             httpMetrics,
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		UploadsHandler:      uploads,
	})

	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook endpoint disabled")
	}

	a.scheduler = jobs.NewScheduler(logger, jobMetrics, 5*time.Minute)
	if err := a.scheduler.Add(jobs.JobTypeRankingWarmup, cfg.WarmupSchedule, jobs.RankingWarmup(repos.services, engine)); err != nil {
		return nil, err
	}
	if err := a.scheduler.Add(jobs.JobTypeIdempotencyCleanup, idempotencyCleanupSchedule,
		jobs.IdempotencyCleanup(repos.idempotency, idempotency.DefaultExpiry)); err != nil {
		return nil, err
	}
	return a, nil
}

// newStores returns Postgres repositories when database is set and in-memory ones otherwise.
func newStores(database *sql.DB) stores {
	if database != nil {
		return stores{
			users:       user.NewPostgresRepository(database),
			services:    listing.NewPostgresRepository(database),
			chat:        chat.NewPostgresRepository(database),
			payments:    payment.NewPostgresRepository(database),
			webhooks:    payment.NewPostgresWebhookRepository(database),
			idempotency: idempotency.NewPostgresRepository(database),
		}
	}
	users := user.NewInMemoryRepository()
	return stores{
		users:       users,
		services:    listing.NewInMemoryRepository(users),
		chat:        chat.NewInMemoryRepository(),
		payments:    payment.NewInMemoryRepository(),
		webhooks:    payment.NewInMemoryWebhookRepository(),
		idempotency: idempotency.NewInMemoryRepository(),
	}
}

// newRankingEngine picks the embedder and layers the vector caches: an LRU in
// front of Redis when Redis is configured.
func newRankingEngine(cfg *config.Config, logger *slog.Logger, redisClient *redis.Client, metrics *ranking.Metrics, healthCfg *api.HealthHandlersConfig) (*ranking.Engine, error) {
	var embedder embedding.Embedder
	if cfg.EmbeddingURL != "" {
		embedder = embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			BaseURL:           cfg.EmbeddingURL,
			Model:             cfg.EmbeddingModel,
			Dimension:         cfg.EmbeddingDimension,
			RequestsPerSecond: cfg.EmbeddingRPS,
			Timeout:           cfg.EmbeddingTimeout(),
		})
		healthCfg.EmbeddingChecker = health.NewEmbeddingChecker(cfg.EmbeddingURL)
	} else {
		logger.Warn("EMBEDDING_URL not set, ranking with the hash embedder")
		embedder = embedding.NewHashEmbedder(cfg.EmbeddingDimension)
	}

	lru, err := embedding.NewLRUCache(cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	var cache embedding.Cache = lru
	if redisClient != nil {
		cache = embedding.NewTieredCache(lru, embedding.NewRedisCache(redisClient, "", cfg.EmbeddingCacheTTL()))
	}

	return ranking.NewEngine(embedder,
		ranking.WithCache(cache),
		ranking.WithTimeout(cfg.EmbeddingTimeout()),
		ranking.WithMetrics(metrics),
	), nil
}

// newStorage returns the S3 bucket when configured, or a memory store that the
// router serves under /uploads/.
func newStorage(cfg *config.Config, logger *slog.Logger, healthCfg *api.HealthHandlersConfig) (upload.Store, http.Handler, error) {
	if !cfg.S3Enabled() {
		logger.Warn("S3 not configured, keeping uploads in memory")
		mem := upload.NewMemoryStore("/uploads")
		return mem, mem, nil
	}
	s3Store, err := upload.NewS3Store(upload.S3Config{
		BucketName:      cfg.S3BucketName,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Endpoint:        cfg.S3Endpoint,
		PublicURL:       cfg.S3PublicURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create S3 store: %w", err)
	}
	healthCfg.StorageChecker = s3Store
	return s3Store, nil, nil
}
