// Package genai implements the embedding capability on Gemini
// embedding models through google.golang.org/genai.
package genai

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/genai"

	"github.com/steveconnect/steve-go/core"
)

const (
	defaultModel = "text-embedding-004"

	// dimensions is fixed system-wide; the index assumes every vector
	// has this size.
	dimensions = 768
)

// Embedder embeds text with a Gemini embedding model. Document and
// query embeddings use the matching retrieval task types so the
// vectors are optimized for the search direction.
type Embedder struct {
	client *genai.Client
	model  string
}

// New creates an embedder. Model defaults to text-embedding-004 when
// empty.
func New(client *genai.Client, model string) *Embedder {
	if model == "" {
		model = defaultModel
	}
	return &Embedder{client: client, model: model}
}

// EmbedDocument embeds text for indexing.
func (e *Embedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds text for searching.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_QUERY")
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return dimensions
}

func (e *Embedder) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	dim := int32(dimensions)
	result, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.EmbedContentConfig{
			TaskType:             taskType,
			OutputDimensionality: &dim,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", core.ErrEmbeddingUnavailable)
	}

	// Truncated-dimensionality vectors are not unit length; normalize
	// so cosine similarity stays comparable across records.
	return normalize(result.Embeddings[0].Values), nil
}

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
