package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/steveconnect/steve-go/core"
)

func TestTracker_InitialStateIsOverview(t *testing.T) {
	ctx := context.Background()
	store, _, tracker := openTestDB(t)

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	state, err := tracker.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to get app state: %v", err)
	}
	if state.CurrentApp != "" {
		t.Errorf("New session should start in overview, got %q", state.CurrentApp)
	}
	if state.PreviousApp != "" {
		t.Errorf("New session should have no previous app, got %q", state.PreviousApp)
	}
}

func TestTracker_TransitionHistoryIsExact(t *testing.T) {
	ctx := context.Background()
	store, _, tracker := openTestDB(t)

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	transitions := []string{"ideation", "vibe_studio", "design", "", "gmail"}
	expected := ""
	for _, next := range transitions {
		prev, err := tracker.Set(ctx, sess.ID, next)
		if err != nil {
			t.Fatalf("Failed to transition to %q: %v", next, err)
		}
		if prev != expected {
			t.Errorf("Transition to %q: previous = %q, want %q", next, prev, expected)
		}

		state, err := tracker.Get(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Failed to get app state: %v", err)
		}
		if state.CurrentApp != next {
			t.Errorf("CurrentApp = %q, want %q", state.CurrentApp, next)
		}
		if state.PreviousApp != expected {
			t.Errorf("PreviousApp = %q, want %q", state.PreviousApp, expected)
		}
		expected = next
	}
}

func TestTracker_UnknownSession(t *testing.T) {
	ctx := context.Background()
	_, _, tracker := openTestDB(t)

	if _, err := tracker.Get(ctx, "no-such-session"); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("Get: expected ErrInvalidSession, got %v", err)
	}
	if _, err := tracker.Set(ctx, "no-such-session", "ideation"); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("Set: expected ErrInvalidSession, got %v", err)
	}
	if err := tracker.SetStateData(ctx, "no-such-session", nil); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("SetStateData: expected ErrInvalidSession, got %v", err)
	}
}

func TestTracker_StateData(t *testing.T) {
	ctx := context.Background()
	store, _, tracker := openTestDB(t)

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	data := map[string]any{"project_name": "LedgerPal", "step": "refine"}
	if err := tracker.SetStateData(ctx, sess.ID, data); err != nil {
		t.Fatalf("Failed to set state data: %v", err)
	}

	state, err := tracker.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to get app state: %v", err)
	}
	if state.StateData["project_name"] != "LedgerPal" {
		t.Errorf("StateData = %v, want project_name %q", state.StateData, "LedgerPal")
	}
}
