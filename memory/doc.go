// Package memory turns ledger events into semantically searchable
// stories. Every app interaction becomes a short natural-language
// narrative, embedded and indexed for nearest-neighbor retrieval, so
// the router can see what the user did across apps without replaying
// the raw event log.
//
// Architecture:
//   - Index: vector storage backend (chromem-go locally)
//   - Embedder: text-to-vector conversion (Gemini embeddings, mock for tests)
//   - Narrator: event-to-story conversion through the text generator
//   - StoryManager: orchestrates narrate, embed, index and retrieve
//
// Integration:
//   - RECORD phase: the engine's background worker drains unsummarized
//     ledger events through StoryManager.RecordEvent
//   - RETRIEVE phase: each chat turn calls StoryManager.Retrieve before
//     routing; failures degrade to an empty context, never an error
package memory
