// Package ranking orders marketplace listings by semantic relevance.
//
// Basic Usage:
//
//	engine := ranking.NewEngine(embedder,
//		ranking.WithCache(cache),
//		ranking.WithTimeout(5*time.Second),
//	)
//
//	// Free-text search
//	results, err := engine.Search(ctx, listings, "logo design")
//	if errors.Is(err, ranking.ErrEmbeddingUnavailable) {
//		// caller decides: show listings unranked with a warning
//	}
//
//	// Preference-based recommendation
//	ordered, err := engine.Recommend(ctx, listings, []string{"Writing", "AI & Data"})
//
//	// Category menu with the active tag first
//	tags := ranking.ReorderCategories(listing.ServiceTags, "Writing")
//
// Scoring:
//
// Each listing becomes one corpus document,
// "TITLE: {title}. DESCRIPTION: {description}. SELLER'S RESUME: {resume}".
// The query and every document are embedded as unit vectors and scored by their
// dot product (cosine similarity). Results are sorted by descending score with a
// stable sort, so equal scores keep their input order.
//
// Caching:
//
// With WithCache, document vectors are stored under the listing ID plus a SHA-256
// fingerprint of title, description and resume. An edit to any of those produces
// a new key, so stale vectors are never served.
package ranking
