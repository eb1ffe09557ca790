package router_test

import (
	"context"
	"testing"

	"github.com/steveconnect/steve-go/core"
	"github.com/steveconnect/steve-go/llm"
	"github.com/steveconnect/steve-go/router"
)

type fakeGenerator struct {
	response string
	down     bool
}

func (g *fakeGenerator) Generate(ctx context.Context, req *llm.Request) (string, error) {
	if g.down {
		return "", core.ErrGenerationUnavailable
	}
	return g.response, nil
}

func decide(t *testing.T, response, currentApp string) *core.Decision {
	t.Helper()
	rt := router.New(&fakeGenerator{response: response})
	return rt.Decide(context.Background(), "I want to build a budgeting app", "", currentApp)
}

func TestRouter_OpenKnownApp(t *testing.T) {
	decision := decide(t, `{"action":"open_app","app_to_open":"ideation","response":"Let's capture that idea!","confidence":0.92,"reasoning":"new project idea"}`, "")

	if decision.Action != core.ActionOpenApp {
		t.Errorf("Action = %q, want open_app", decision.Action)
	}
	if decision.AppToOpen != "ideation" {
		t.Errorf("AppToOpen = %q, want ideation", decision.AppToOpen)
	}
	if decision.Confidence != 0.92 {
		t.Errorf("Confidence = %f, want 0.92", decision.Confidence)
	}
}

func TestRouter_UnknownAppNormalized(t *testing.T) {
	decision := decide(t, `{"action":"open_app","app_to_open":"spreadsheet","response":"Opening spreadsheet!","confidence":0.9}`, "ideation")

	if decision.Action != core.ActionContinueChat {
		t.Errorf("Action = %q, want continue_chat", decision.Action)
	}
	if decision.AppToOpen != "" {
		t.Errorf("AppToOpen = %q, want empty", decision.AppToOpen)
	}
	if decision.Response == "" {
		t.Error("Fallback should carry a clarifying response")
	}
}

func TestRouter_UnknownActionNormalized(t *testing.T) {
	decision := decide(t, `{"action":"launch_rocket","response":"Liftoff"}`, "")

	if decision.Action != core.ActionContinueChat {
		t.Errorf("Action = %q, want continue_chat", decision.Action)
	}
}

func TestRouter_GarbageOutputNormalized(t *testing.T) {
	decision := decide(t, "Sure! I'd love to help with that.", "")

	if decision.Action != core.ActionContinueChat {
		t.Errorf("Action = %q, want continue_chat", decision.Action)
	}
	if decision.AppToOpen != "" {
		t.Errorf("AppToOpen = %q, want empty", decision.AppToOpen)
	}
}

func TestRouter_JSONInsideProse(t *testing.T) {
	decision := decide(t, "Here is my decision:\n```json\n{\"action\":\"return_overview\",\"response\":\"Back to the overview.\",\"confidence\":0.8}\n```", "design")

	if decision.Action != core.ActionReturnOverview {
		t.Errorf("Action = %q, want return_overview", decision.Action)
	}
	if decision.AppToOpen != "" {
		t.Errorf("AppToOpen = %q, want empty", decision.AppToOpen)
	}
}

func TestRouter_GeneratorDown(t *testing.T) {
	rt := router.New(&fakeGenerator{down: true})
	decision := rt.Decide(context.Background(), "hello", "", "")

	if decision.Action != core.ActionContinueChat {
		t.Errorf("Action = %q, want continue_chat", decision.Action)
	}
	if decision.Response == "" {
		t.Error("Fallback should carry a clarifying response")
	}
}

func TestRouter_ConfidenceClamped(t *testing.T) {
	decision := decide(t, `{"action":"continue_chat","response":"ok","confidence":7.5}`, "")

	if decision.Confidence != 0 {
		t.Errorf("Out-of-range confidence should clamp to 0, got %f", decision.Confidence)
	}
}
