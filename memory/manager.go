package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveconnect/steve-go/core"
	"github.com/steveconnect/steve-go/llm"
)

const (
	// retrieveTopK is how many stories one turn pulls into context.
	retrieveTopK = 5

	// maxDigestLen bounds the context summary handed to the router.
	maxDigestLen = 500
)

const digestSystem = `Compress the following past-activity stories into one short
digest (at most 3 sentences) preserving app names and concrete outcomes.
Output only the digest.`

// StoryManager orchestrates the memory pipeline: narrate an event,
// embed the story, index it, and later retrieve the nearest stories as
// a bounded context summary for routing.
//
// Retrieval is strictly best-effort. Embedding or index failures
// degrade to an empty summary; absence of memory never blocks a turn.
type StoryManager struct {
	index    Index
	embedder Embedder
	narrator *Narrator

	// digester compresses oversized summaries. Optional; when nil the
	// summary is truncated instead.
	digester llm.Generator

	mu   sync.Mutex
	apps map[string]int // records indexed per app, this process
}

// NewStoryManager creates a manager. digester may be nil.
func NewStoryManager(index Index, embedder Embedder, narrator *Narrator, digester llm.Generator) *StoryManager {
	return &StoryManager{
		index:    index,
		embedder: embedder,
		narrator: narrator,
		digester: digester,
		apps:     make(map[string]int),
	}
}

// RecordEvent narrates, embeds and indexes one ledger event. The
// narrative always materializes (fallback template at worst); an
// embedding or index failure is returned so the caller can retry the
// event later.
func (m *StoryManager) RecordEvent(ctx context.Context, event *core.ContextEvent, userID string) (*StoryRecord, error) {
	story := m.narrator.Narrate(ctx, event)

	embedding, err := m.embedder.EmbedDocument(ctx, story)
	if err != nil {
		return nil, fmt.Errorf("embed story for event %s: %w", event.ID, err)
	}

	rec := &StoryRecord{
		ID:        uuid.New().String(),
		Narrative: story,
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
		Metadata: map[string]string{
			"app_name":    event.App,
			"action":      event.Action,
			"action_type": ClassifyAction(event.Action),
			"event_id":    event.ID,
			"session_id":  event.SessionID,
			"user_id":     userID,
		},
	}
	if project, ok := event.Payload["project_name"].(string); ok && project != "" {
		rec.Metadata["project_name"] = project
	}

	if err := m.index.Add(ctx, rec); err != nil {
		return nil, fmt.Errorf("index story for event %s: %w", event.ID, err)
	}

	m.mu.Lock()
	m.apps[event.App]++
	m.mu.Unlock()

	log.Printf("[MEMORY] Indexed story %s for event %s (%s/%s)",
		rec.ID, event.ID, event.App, event.Action)
	return rec, nil
}

// Retrieve returns a bounded context summary for the utterance, empty
// when there is no relevant history or the memory subsystem is down.
func (m *StoryManager) Retrieve(ctx context.Context, utterance string) string {
	records, err := m.Search(ctx, utterance, retrieveTopK)
	if err != nil {
		log.Printf("[MEMORY] Retrieval degraded to empty context: %v", err)
		return ""
	}
	if len(records) == 0 {
		log.Printf("[MEMORY] No stories found for query: %q", truncateLog(utterance, 50))
		return ""
	}

	log.Printf("[MEMORY] Retrieved %d stories for query: %q", len(records), truncateLog(utterance, 50))

	// Concatenate nearest-first.
	parts := make([]string, len(records))
	for i, rec := range records {
		parts[i] = rec.Narrative
	}
	summary := strings.Join(parts, " ")
	if len(summary) <= maxDigestLen {
		return summary
	}

	if m.digester != nil {
		digest, err := m.digester.Generate(ctx, &llm.Request{
			System:    digestSystem,
			Prompt:    summary,
			MaxTokens: 300,
		})
		if err == nil {
			digest = strings.TrimSpace(digest)
			if digest != "" && len(digest) <= maxDigestLen {
				return digest
			}
		} else {
			log.Printf("[MEMORY] Digest compression failed, truncating: %v", err)
		}
	}
	return summary[:maxDigestLen]
}

// Search queries the index directly. Used by the admin surface; unlike
// Retrieve it propagates failures.
func (m *StoryManager) Search(ctx context.Context, query string, topK int) ([]*StoryRecord, error) {
	embedding, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	records, err := m.index.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return records, nil
}

// Stats describes the state of the memory index.
type Stats struct {
	Records int            `json:"records"`
	Apps    map[string]int `json:"apps"`
}

// IndexStats reports the total record count and the per-app counts of
// stories indexed by this process.
func (m *StoryManager) IndexStats() Stats {
	m.mu.Lock()
	apps := make(map[string]int, len(m.apps))
	for app, n := range m.apps {
		apps[app] = n
	}
	m.mu.Unlock()

	return Stats{Records: m.index.Count(), Apps: apps}
}

// SortRecords orders records most-similar first, ties broken by newest
// created_at. Index implementations share it so top-K is deterministic
// for a fixed index state.
func SortRecords(records []*StoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Similarity != records[j].Similarity {
			return records[i].Similarity > records[j].Similarity
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
