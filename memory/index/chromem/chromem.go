// Package chromem implements the vector index on chromem-go, a pure
// Go embedded vector database. Stories persist to disk so the index
// survives restarts without a rebuild.
package chromem

import (
	"context"
	"fmt"
	"log"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/steveconnect/steve-go/memory"
)

const collectionName = "stories"

// Index stores story records in a single persistent chromem collection.
// Adds and searches are safe concurrently; readers may briefly miss an
// in-flight add, which is fine for retrieval.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection
}

// New opens (or creates) a persistent index at path. An empty path
// falls back to a purely in-memory index, used by tests.
func New(path string) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	// Embeddings are provided by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	return &Index{db: db, col: col}, nil
}

// Add stores one record. Incremental; never rebuilds.
func (ix *Index) Add(ctx context.Context, rec *memory.StoryRecord) error {
	metadata := make(map[string]string, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		metadata[k] = v
	}
	metadata["created_at"] = rec.CreatedAt.Format(time.RFC3339Nano)

	err := ix.col.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   rec.Narrative,
		Embedding: rec.Embedding,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	log.Printf("[CHROMEM] Stored story %s (%s)", rec.ID, rec.Metadata["app_name"])
	return nil
}

// Search returns up to topK records nearest the embedding, most
// similar first, ties broken by newest created_at. An empty index
// answers empty.
func (ix *Index) Search(ctx context.Context, embedding []float32, topK int) ([]*memory.StoryRecord, error) {
	count := ix.col.Count()
	if count == 0 {
		log.Printf("[CHROMEM] Index is empty")
		return nil, nil
	}
	// chromem rejects nResults above the collection size.
	if topK > count {
		topK = count
	}

	results, err := ix.col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	records := make([]*memory.StoryRecord, 0, len(results))
	for _, result := range results {
		rec := &memory.StoryRecord{
			ID:         result.ID,
			Narrative:  result.Content,
			Embedding:  result.Embedding,
			Similarity: result.Similarity,
			Metadata:   make(map[string]string, len(result.Metadata)),
		}
		for k, v := range result.Metadata {
			if k == "created_at" {
				rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
				continue
			}
			rec.Metadata[k] = v
		}
		records = append(records, rec)
	}

	memory.SortRecords(records)
	log.Printf("[CHROMEM] Returning %d records", len(records))
	return records, nil
}

// Count returns the number of indexed records.
func (ix *Index) Count() int {
	return ix.col.Count()
}

// Close releases resources. chromem persists on every write, so there
// is nothing to flush.
func (ix *Index) Close() error {
	return nil
}
