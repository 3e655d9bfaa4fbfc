package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/freelancehub/internal/embedding"
	"github.com/onnwee/freelancehub/internal/listing"
	"github.com/onnwee/freelancehub/internal/tracing"
)

var (
	// ErrEmbeddingUnavailable is returned when no vectors could be produced for a search.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrEmbeddingTimeout is returned when embedding was cancelled or ran past its deadline.
	// Errors matching it also match ErrEmbeddingUnavailable.
	ErrEmbeddingTimeout = errors.New("embedding timed out")

	// ErrInvalidQuery is returned for query text that is not valid UTF-8.
	ErrInvalidQuery = errors.New("invalid query")
)

// Result pairs a listing with its similarity to the query.
type Result struct {
	Listing listing.Listing `json:"listing"`
	Score   float64         `json:"score"`
}

// Engine ranks listings with an injected Embedder. It is safe for concurrent use.
type Engine struct {
	embedder embedding.Embedder
	space    string
	cache    embedding.Cache
	timeout  time.Duration
	metrics  *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache stores document vectors between searches.
func WithCache(c embedding.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithTimeout bounds the embedding work of each search.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithMetrics records search latency, cache hits and embedding failures.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine.
func NewEngine(embedder embedding.Embedder, opts ...Option) *Engine {
	e := &Engine{embedder: embedder, space: embedding.Identity(embedder)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query is a corpus built from one listing snapshot.
type Query struct {
	engine   *Engine
	listings []listing.Listing
	docs     []string
}

// NewQuery builds the corpus documents for listings. No embedding happens here.
func (e *Engine) NewQuery(listings []listing.Listing) *Query {
	docs := make([]string, len(listings))
	for i, l := range listings {
		docs[i] = Document(l)
	}
	return &Query{engine: e, listings: listings, docs: docs}
}

// Document returns the text embedded for a listing.
func Document(l listing.Listing) string {
	return fmt.Sprintf("TITLE: %s. DESCRIPTION: %s. SELLER'S RESUME: %s", l.Title, l.Description, l.Resume)
}

// Search ranks listings against query.
func (e *Engine) Search(ctx context.Context, listings []listing.Listing, query string) ([]Result, error) {
	return e.NewQuery(listings).Search(ctx, query)
}

// Search returns every listing paired with its score, highest first.
// Equal scores keep corpus order. An empty corpus yields an empty result for any
// query without calling the embedder.
func (q *Query) Search(ctx context.Context, query string) (results []Result, err error) {
	if len(q.listings) == 0 {
		return []Result{}, nil
	}
	if !utf8.ValidString(query) {
		return nil, ErrInvalidQuery
	}

	e := q.engine
	ctx, endSpan := tracing.StartSpan(ctx, "ranking.search")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx, attribute.Int("ranking.corpus_size", len(q.listings)))

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() { e.metrics.observeSearch(time.Since(start), err) }()

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, embedError(ctx, err)
	}
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrEmbeddingUnavailable)
	}

	docVecs, err := e.documentVectors(ctx, q.listings, q.docs)
	if err != nil {
		return nil, err
	}
	for i, v := range docVecs {
		if len(v) != len(queryVec) {
			return nil, fmt.Errorf("%w: listing %d has a %d-dimension vector, query has %d",
				ErrEmbeddingUnavailable, q.listings[i].ID, len(v), len(queryVec))
		}
	}

	results = make([]Result, len(q.listings))
	for i, l := range q.listings {
		results[i] = Result{Listing: l, Score: embedding.Dot(queryVec, docVecs[i])}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// Warm embeds and caches every listing whose vector is not cached yet.
// It returns how many listings were embedded. Without a cache it does nothing.
func (e *Engine) Warm(ctx context.Context, listings []listing.Listing) (int, error) {
	if e.cache == nil || len(listings) == 0 {
		return 0, nil
	}
	docs := make([]string, len(listings))
	for i, l := range listings {
		docs[i] = Document(l)
	}
	missing, err := e.fillFromCache(ctx, listings, docs, make([][]float32, len(listings)))
	if err != nil {
		return 0, err
	}
	return missing, nil
}

// documentVectors returns one vector per listing, embedding only cache misses.
func (e *Engine) documentVectors(ctx context.Context, listings []listing.Listing, docs []string) ([][]float32, error) {
	vecs := make([][]float32, len(listings))
	if e.cache == nil {
		out, err := e.embedder.EmbedBatch(ctx, docs)
		if err != nil {
			return nil, embedError(ctx, err)
		}
		if err := checkVectors(out, len(docs)); err != nil {
			return nil, err
		}
		return out, nil
	}
	if _, err := e.fillFromCache(ctx, listings, docs, vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

// fillFromCache fills vecs from the cache, embeds the misses in one batch and
// caches them. It returns the number of misses.
func (e *Engine) fillFromCache(ctx context.Context, listings []listing.Listing, docs []string, vecs [][]float32) (int, error) {
	keys := make([]string, len(listings))
	var missIdx []int
	for i, l := range listings {
		keys[i] = embedding.CacheKey(e.space, l.ID, embedding.Fingerprint(l.Title, l.Description, l.Resume))
		if v, ok := e.cache.Get(ctx, keys[i]); ok && len(v) > 0 {
			vecs[i] = v
			continue
		}
		missIdx = append(missIdx, i)
	}
	e.metrics.observeCache(len(listings)-len(missIdx), len(missIdx))

	if len(missIdx) == 0 {
		return 0, nil
	}

	texts := make([]string, len(missIdx))
	for j, i := range missIdx {
		texts[j] = docs[i]
	}
	out, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, embedError(ctx, err)
	}
	if err := checkVectors(out, len(texts)); err != nil {
		return 0, err
	}
	for j, i := range missIdx {
		vecs[i] = out[j]
		e.cache.Set(ctx, keys[i], out[j])
	}
	return len(missIdx), nil
}

func checkVectors(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: got %d vectors for %d documents", ErrEmbeddingUnavailable, len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector for document %d", ErrEmbeddingUnavailable, i)
		}
	}
	return nil
}

// embedError classifies an embedder failure.
func embedError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w: %w", ErrEmbeddingTimeout, ErrEmbeddingUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
}
