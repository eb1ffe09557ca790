package session_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/steveconnect/steve-go/core"
)

func TestLedger_AppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store, ledger, _ := openTestDB(t)

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	const k = 5
	for i := 0; i < k; i++ {
		_, err := ledger.Append(ctx, sess.ID, "ideation", "submit_data",
			map[string]any{"step": fmt.Sprintf("step-%d", i)}, "")
		if err != nil {
			t.Fatalf("Failed to append event %d: %v", i, err)
		}
	}

	events, err := ledger.List(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(events) != k {
		t.Fatalf("Expected %d events, got %d", k, len(events))
	}
	for i, event := range events {
		want := fmt.Sprintf("step-%d", i)
		if event.Payload["step"] != want {
			t.Errorf("Event %d: step = %v, want %q", i, event.Payload["step"], want)
		}
	}
}

func TestLedger_EventsImmutable(t *testing.T) {
	ctx := context.Background()
	store, ledger, _ := openTestDB(t)

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	written, err := ledger.Append(ctx, sess.ID, "design", "generate_image",
		map[string]any{"prompt": "wallet logo"}, "")
	if err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}

	first, err := ledger.Get(ctx, written.ID)
	if err != nil {
		t.Fatalf("Failed to get event: %v", err)
	}
	second, err := ledger.Get(ctx, written.ID)
	if err != nil {
		t.Fatalf("Failed to re-read event: %v", err)
	}
	if !reflect.DeepEqual(first.Payload, second.Payload) {
		t.Errorf("Payload changed between reads: %v vs %v", first.Payload, second.Payload)
	}
	if first.Payload["prompt"] != "wallet logo" {
		t.Errorf("Payload = %v, want prompt %q", first.Payload, "wallet logo")
	}
}

func TestLedger_IdempotentAppend(t *testing.T) {
	ctx := context.Background()
	store, ledger, _ := openTestDB(t)

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	first, err := ledger.Append(ctx, sess.ID, "chat", "user_interaction",
		map[string]any{"message": "hello"}, "turn-42")
	if err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}

	// Client retry with the same turn ID.
	second, err := ledger.Append(ctx, sess.ID, "chat", "user_interaction",
		map[string]any{"message": "hello"}, "turn-42")
	if err != nil {
		t.Fatalf("Retry append failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Retry produced a new event: %s vs %s", second.ID, first.ID)
	}

	events, err := ledger.List(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected exactly 1 event after duplicate turn, got %d", len(events))
	}
}

func TestLedger_AppendInvalidSession(t *testing.T) {
	ctx := context.Background()
	store, ledger, _ := openTestDB(t)

	if _, err := ledger.Append(ctx, "no-such-session", "chat", "user_interaction", nil, ""); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("Expected ErrInvalidSession for unknown session, got %v", err)
	}

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := store.Deactivate(ctx, sess.ID); err != nil {
		t.Fatalf("Failed to deactivate session: %v", err)
	}
	if _, err := ledger.Append(ctx, sess.ID, "chat", "user_interaction", nil, ""); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("Expected ErrInvalidSession for inactive session, got %v", err)
	}
}

func TestLedger_UnsummarizedQueue(t *testing.T) {
	ctx := context.Background()
	store, ledger, _ := openTestDB(t)

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	first, err := ledger.Append(ctx, sess.ID, "ideation", "submit_data", nil, "")
	if err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}
	if _, err := ledger.Append(ctx, sess.ID, "vibe_studio", "generate_app", nil, ""); err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}

	pending, err := ledger.Unsummarized(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to scan unsummarized: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 unsummarized events, got %d", len(pending))
	}
	if pending[0].ID != first.ID {
		t.Errorf("Expected oldest event first, got %s", pending[0].ID)
	}

	if err := ledger.MarkSummarized(ctx, first.ID); err != nil {
		t.Fatalf("Failed to mark summarized: %v", err)
	}

	pending, err = ledger.Unsummarized(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to re-scan unsummarized: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 unsummarized event, got %d", len(pending))
	}
	if pending[0].ID == first.ID {
		t.Error("Summarized event still in queue")
	}
}

func TestLedger_AppendTouchesSession(t *testing.T) {
	ctx := context.Background()
	store, ledger, _ := openTestDB(t)

	sess, err := store.Create(ctx, "user1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err := ledger.Append(ctx, sess.ID, "chat", "user_interaction", nil, ""); err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got.UpdatedAt.Before(sess.UpdatedAt) {
		t.Errorf("Append should touch updated_at: %v -> %v", sess.UpdatedAt, got.UpdatedAt)
	}
}
