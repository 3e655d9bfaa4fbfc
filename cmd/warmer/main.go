// Package main runs a single ranking warmup pass and exits.
// It embeds every listing missing from the shared Redis vector cache so the
// first searches after a deploy do not pay for embedding the whole market.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/freelancehub/internal/config"
	"github.com/onnwee/freelancehub/internal/db"
	"github.com/onnwee/freelancehub/internal/embedding"
	"github.com/onnwee/freelancehub/internal/jobs"
	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/middleware"
	"github.com/onnwee/freelancehub/internal/ranking"
)

// warmupTimeout bounds the whole pass.
const warmupTimeout = 30 * time.Minute

var errMissingBackends = errors.New("DATABASE_URL and REDIS_URL are required")

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("FreelanceHub Ranking Warmer")
		fmt.Println()
		fmt.Println("Usage: warmer [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if cfg == nil {
		cfg = &config.Config{Env: config.DefaultEnv}
	}
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("warmup failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" || cfg.RedisURL == "" {
		return errMissingBackends
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2})
	if err != nil {
		return err
	}
	defer database.Close()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	var embedder embedding.Embedder = embedding.NewHashEmbedder(cfg.EmbeddingDimension)
	if cfg.EmbeddingURL != "" {
		embedder = embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			BaseURL:           cfg.EmbeddingURL,
			Model:             cfg.EmbeddingModel,
			Dimension:         cfg.EmbeddingDimension,
			RequestsPerSecond: cfg.EmbeddingRPS,
			Timeout:           cfg.EmbeddingTimeout(),
		})
	}
	engine := ranking.NewEngine(embedder,
		ranking.WithCache(embedding.NewRedisCache(client, "", cfg.EmbeddingCacheTTL())),
	)

	return jobs.Run(ctx, logger, nil, jobs.JobTypeRankingWarmup, warmupTimeout,
		jobs.RankingWarmup(listing.NewPostgresRepository(database), engine))
}
