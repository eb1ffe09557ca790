// Package llm wraps the external text-generation capability behind a
// narrow interface so the router and the narrator can be tested with
// fakes and swapped to other providers.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/steveconnect/steve-go/core"
)

// Request is one generation call: a system prompt plus a user prompt.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64
}

// Generator is the text-generation capability boundary.
// Implementations: Anthropic (production), fakes (tests).
type Generator interface {
	// Generate returns the generated text for the request, or an error
	// wrapping core.ErrGenerationUnavailable once bounded retries are
	// exhausted.
	Generate(ctx context.Context, req *Request) (string, error)
}

// Anthropic generates text through the Claude Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates a generator backed by the given client.
// Model defaults to claude-sonnet-4-20250514 when empty.
func NewAnthropic(client *anthropic.Client, model string) *Anthropic {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &Anthropic{client: client, model: model}
}

// Generate calls the Messages API with at most one retry. The retry
// backs off briefly; callers must not hold locks across this call.
func (a *Anthropic) Generate(ctx context.Context, req *Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", core.ErrGenerationUnavailable, ctx.Err())
			}
		}

		resp, err := a.client.Messages.New(ctx, params)
		if err != nil {
			lastErr = err
			continue
		}

		var text string
		for _, block := range resp.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		return text, nil
	}

	return "", fmt.Errorf("%w: %v", core.ErrGenerationUnavailable, lastErr)
}
