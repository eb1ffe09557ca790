// Package mock provides a deterministic embedder for tests. No
// network, no model files; same text always gets the same vector.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates hash-based embeddings. Identical texts embed
// identically, so similarity is exact-match oriented rather than
// semantic, which is enough for index and manager tests.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder matching the production dimensionality.
func New() *Embedder {
	return &Embedder{dimensions: 768}
}

// EmbedDocument creates a deterministic embedding from text.
func (m *Embedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return m.embed(text), nil
}

// EmbedQuery is identical to EmbedDocument; the mock has no retrieval
// direction.
func (m *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.embed(text), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func (m *Embedder) embed(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))

	// Use the hash as an LCG seed for pseudo-random components.
	seed := h.Sum64()
	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding)
}

// normalize converts the embedding to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}
