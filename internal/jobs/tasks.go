package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/freelancehub/internal/idempotency"
	"github.com/onnwee/freelancehub/internal/listing"
)

// ListingSource lists every service for warmup.
type ListingSource interface {
	FetchAllListings(ctx context.Context) ([]listing.Listing, error)
}

// Warmer precomputes listing vectors. Implemented by *ranking.Engine.
type Warmer interface {
	Warm(ctx context.Context, listings []listing.Listing) (int, error)
}

// RankingWarmup embeds listings missing from the vector cache so the first
// search after a deploy or a burst of new listings stays fast.
func RankingWarmup(source ListingSource, warmer Warmer) Func {
	return func(ctx context.Context) (int, error) {
		listings, err := source.FetchAllListings(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetch listings: %w", err)
		}
		n, err := warmer.Warm(ctx, listings)
		if err != nil {
			return n, fmt.Errorf("warm ranking cache: %w", err)
		}
		return n, nil
	}
}

// IdempotencyCleanup deletes keys older than expiry.
func IdempotencyCleanup(repo idempotency.Repository, expiry time.Duration) Func {
	return func(ctx context.Context) (int, error) {
		n, err := idempotency.CleanupOldKeys(ctx, repo, expiry)
		return int(n), err
	}
}
