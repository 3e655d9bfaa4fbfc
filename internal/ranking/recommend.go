package ranking

import (
	"context"
	"strings"

	"github.com/onnwee/freelancehub/internal/listing"
)

// Recommend orders listings by the user's preference tags.
// The tags are joined with single spaces into one query. With no tags the
// listings are returned unchanged. Search errors are returned as is.
func (e *Engine) Recommend(ctx context.Context, listings []listing.Listing, tags []string) ([]listing.Listing, error) {
	if len(tags) == 0 {
		return listings, nil
	}

	results, err := e.Search(ctx, listings, strings.Join(tags, " "))
	if err != nil {
		return nil, err
	}

	out := make([]listing.Listing, len(results))
	for i, r := range results {
		out[i] = r.Listing
	}
	return out, nil
}

// ReorderCategories moves active to the front of canonical, keeping the order of
// the other entries. If active is not in canonical the copy is unchanged.
// canonical is never modified.
func ReorderCategories(canonical []string, active string) []string {
	out := make([]string, 0, len(canonical))
	for _, tag := range canonical {
		if tag == active {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return append(out, canonical...)
	}

	for _, tag := range canonical {
		if tag != active {
			out = append(out, tag)
		}
	}
	return out
}
