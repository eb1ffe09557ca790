package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/steveconnect/steve-go/core"
	"github.com/steveconnect/steve-go/llm"
)

// maxNarrativeLen bounds story length so a single narrative never
// dominates the retrieval digest.
const maxNarrativeLen = 600

const narratorSystem = `You are a story writer for a user's creative workspace.
Given one structured interaction event, write a short story (2-3 sentences,
past tense, third person "the user") describing what the user did and why it
matters for their project. Mention the app by name. Output only the story text.`

// Narrator converts a structured ledger event into a short narrative
// suitable for embedding. It is best-effort: when the generator is
// down the deterministic fallback template is used, so an event is
// narrated one way or another and never lost.
type Narrator struct {
	gen llm.Generator
}

// NewNarrator creates a narrator on the given generator.
func NewNarrator(gen llm.Generator) *Narrator {
	return &Narrator{gen: gen}
}

// Narrate returns a story for the event. The generator gets one
// bounded-retry call; on persistent failure the fallback template is
// returned and the failure is logged, never surfaced.
func (n *Narrator) Narrate(ctx context.Context, event *core.ContextEvent) string {
	payload, _ := json.Marshal(event.Payload)
	prompt := fmt.Sprintf("App: %s\nAction: %s\nDetails: %s", event.App, event.Action, payload)

	story, err := n.gen.Generate(ctx, &llm.Request{
		System:    narratorSystem,
		Prompt:    prompt,
		MaxTokens: 300,
	})
	if err != nil {
		log.Printf("[NARRATOR] %v (event %s), using fallback story",
			fmt.Errorf("%w: %v", core.ErrSummarizationUnavailable, err), event.ID)
		return FallbackStory(event)
	}

	story = strings.TrimSpace(story)
	if story == "" {
		return FallbackStory(event)
	}
	if len(story) > maxNarrativeLen {
		story = story[:maxNarrativeLen]
	}
	return story
}

// FallbackStory builds a deterministic narrative from the event alone.
func FallbackStory(event *core.ContextEvent) string {
	var details []string
	for _, key := range []string{"project_name", "idea", "subject", "prompt", "message"} {
		if v, ok := event.Payload[key].(string); ok && v != "" {
			details = append(details, fmt.Sprintf("%s: %s", key, v))
		}
	}
	story := fmt.Sprintf("The user performed %s in the %s app.", event.Action, event.App)
	if len(details) > 0 {
		story += " Details - " + strings.Join(details, ", ") + "."
	}
	return story
}

// ClassifyAction tags an action name with a coarse category used in
// story metadata.
func ClassifyAction(action string) string {
	action = strings.ToLower(action)
	switch {
	case containsAny(action, "generate", "create", "submit", "build"):
		return "creation"
	case containsAny(action, "edit", "update", "refine", "modify"):
		return "modification"
	case containsAny(action, "send", "share", "draft", "email"):
		return "sharing"
	case containsAny(action, "search", "analyze", "review"):
		return "analysis"
	case containsAny(action, "plan", "idea", "brainstorm"):
		return "planning"
	}
	return "general"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
