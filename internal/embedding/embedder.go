// Package embedding maps text to unit-length vectors and caches per-listing vectors.
//
// Every Embedder returns L2-normalized vectors, so cosine similarity between two
// results is their dot product. Embedders are safe for concurrent use and are
// read-only after construction.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrUnavailable is returned when the embedding backend cannot produce vectors.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder produces normalized embedding vectors.
// Identical input text yields identical vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Identifier is implemented by embedders that name the vector space they produce.
// Two embedders with the same identity must return interchangeable vectors.
type Identifier interface {
	Identity() string
}

// Identity names the vector space of e. Embedders that do not implement
// Identifier are named by their type.
func Identity(e Embedder) string {
	if id, ok := e.(Identifier); ok {
		return id.Identity()
	}
	return fmt.Sprintf("%T", e)
}

// Normalize scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) * inv)
	}
	return v
}

// Dot returns the dot product of a and b over their common length.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
