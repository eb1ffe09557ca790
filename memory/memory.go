package memory

import (
	"context"
	"time"
)

// StoryRecord is one indexed narrative: a human-readable story derived
// from a ledger event, plus its embedding. Records are immutable once
// indexed; corrections are new records, never vector mutations.
type StoryRecord struct {
	ID        string
	Narrative string
	Embedding []float32
	CreatedAt time.Time

	// Metadata carries app_name, action, action_type, event_id,
	// session_id and user_id for filtering and display.
	Metadata map[string]string

	// Similarity is the cosine similarity to the query, in [-1, 1].
	// Only populated on records returned from Search.
	Similarity float32
}

// Index is the vector storage backend interface.
// Implementations: chromem index (local), pgvector (production).
type Index interface {
	// Add stores a record with its embedding. Incremental; no rebuild.
	Add(ctx context.Context, rec *StoryRecord) error

	// Search returns up to topK records nearest the query embedding,
	// most similar first, ties broken by newest created_at. An empty
	// index answers with an empty slice, never an error.
	Search(ctx context.Context, embedding []float32, topK int) ([]*StoryRecord, error)

	// Count returns the number of indexed records.
	Count() int

	// Close releases resources.
	Close() error
}

// Embedder converts text to fixed-dimension vectors. Document and
// query embeddings are separate calls because some providers optimize
// the vector for the retrieval direction.
//
// Implementations: genai (Gemini), mock (tests).
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size. Fixed system-wide;
	// mixing dimensionalities in one index is a deployment error.
	Dimensions() int
}
