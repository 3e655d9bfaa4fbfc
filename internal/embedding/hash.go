package embedding

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"unicode"
)

// DefaultHashDimension is the vector size used by NewHashEmbedder when dim <= 0.
const DefaultHashDimension = 1024

// HashEmbedder is a deterministic bag-of-words embedder.
// Each lowercased word token increments one FNV-1a bucket; the counts are then normalized.
// It needs no model server and is used for tests and offline development.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of length dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the vector length.
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// Identity names the hash space and its dimension.
func (e *HashEmbedder) Identity() string {
	return "hash-" + strconv.Itoa(e.dim)
}

// Embed returns the normalized token-count vector for text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

// EmbedBatch embeds each text in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(e.dim)]++
	}
	return Normalize(v)
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
