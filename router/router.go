// Package router decides which app should handle a turn. The decision
// itself is delegated to the text generator; the router's job is the
// boundary: build the prompt, parse the JSON decision out of free
// text, and validate it against the closed app set before anything
// touches persisted state.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/steveconnect/steve-go/core"
	"github.com/steveconnect/steve-go/llm"
)

const routerSystem = `You are Steve, the orchestrator of a creative workspace with four apps:
- ideation: capture and refine project ideas
- vibe_studio: generate a working app prototype from an idea
- design: generate logos and visual assets
- gmail: draft and send project emails

The usual workflow progresses ideation -> vibe_studio -> design -> gmail.
When the user confirms a suggestion ("yes", "let's do it"), advance to the
next step of that workflow. When they just chat, stay where they are.

Respond with ONLY a JSON object:
{
  "action": "open_app" | "continue_chat" | "return_overview",
  "app_to_open": "<app name, only when action is open_app>",
  "response": "<short reply to show the user>",
  "confidence": <0.0-1.0>,
  "reasoning": "<one sentence>"
}`

const fallbackResponse = "I didn't quite catch which app you need. " +
	"You can work on ideas, build a prototype, design assets, or send an email - what would you like to do?"

// Router turns a user utterance plus retrieved context into a
// validated routing decision. Stateless; everything it reasons over is
// passed in.
type Router struct {
	gen llm.Generator
}

// New creates a router on the given generator.
func New(gen llm.Generator) *Router {
	return &Router{gen: gen}
}

// Decide routes one turn. currentApp is empty for overview. The
// returned decision is always safe to apply: an unparseable or
// out-of-set generator output is normalized to a no-switch
// continue_chat decision, never propagated.
func (r *Router) Decide(ctx context.Context, utterance, contextSummary, currentApp string) *core.Decision {
	raw, err := r.gen.Generate(ctx, &llm.Request{
		System:    routerSystem,
		Prompt:    buildPrompt(utterance, contextSummary, currentApp),
		MaxTokens: 1024,
	})
	if err != nil {
		log.Printf("[ROUTER] Generation failed, falling back to continue_chat: %v", err)
		return fallbackDecision()
	}

	decision, err := parseDecision(raw)
	if err != nil {
		log.Printf("[ROUTER] %v (raw: %q)", err, truncateLog(raw, 120))
		return fallbackDecision()
	}

	log.Printf("[ROUTER] action=%s app=%s confidence=%.2f", decision.Action, decision.AppToOpen, decision.Confidence)
	return decision
}

func buildPrompt(utterance, contextSummary, currentApp string) string {
	var b strings.Builder
	if currentApp == "" {
		b.WriteString("Current app: none (overview)\n")
	} else {
		fmt.Fprintf(&b, "Current app: %s\n", currentApp)
	}
	if contextSummary != "" {
		fmt.Fprintf(&b, "Relevant past activity: %s\n", contextSummary)
	}
	fmt.Fprintf(&b, "\nUser: %s", utterance)
	return b.String()
}

// parseDecision extracts and validates the JSON decision from free
// text. The generator sometimes wraps the object in prose or code
// fences, so we take the outermost braces.
func parseDecision(raw string) (*core.Decision, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in output", core.ErrInvalidRouterOutput)
	}

	var decision core.Decision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decision); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRouterOutput, err)
	}

	switch decision.Action {
	case core.ActionOpenApp:
		app, ok := core.ParseApp(decision.AppToOpen)
		if !ok {
			return nil, fmt.Errorf("%w: unknown app %q", core.ErrInvalidRouterOutput, decision.AppToOpen)
		}
		decision.AppToOpen = string(app)
	case core.ActionContinueChat, core.ActionReturnOverview:
		decision.AppToOpen = ""
	default:
		return nil, fmt.Errorf("%w: unknown action %q", core.ErrInvalidRouterOutput, decision.Action)
	}

	if decision.Response == "" {
		return nil, fmt.Errorf("%w: empty response text", core.ErrInvalidRouterOutput)
	}
	if decision.Confidence < 0 || decision.Confidence > 1 {
		decision.Confidence = 0
	}
	return &decision, nil
}

// fallbackDecision is the safe no-op: no app switch, generic
// clarifying reply.
func fallbackDecision() *core.Decision {
	return &core.Decision{
		Response:   fallbackResponse,
		Action:     core.ActionContinueChat,
		Confidence: 0,
		Reasoning:  "fallback after invalid router output",
	}
}

func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
