// Package engine orchestrates one chat turn end to end: ensure a
// session, retrieve past context, route, apply the app transition,
// append the ledger event, and wake the background worker that turns
// events into indexed stories.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveconnect/steve-go/core"
	"github.com/steveconnect/steve-go/memory"
	"github.com/steveconnect/steve-go/router"
	"github.com/steveconnect/steve-go/session"
)

const (
	// pollInterval bounds how long an unsummarized event waits when the
	// wake signal is missed (e.g. events appended while the worker was
	// mid-drain).
	pollInterval = 5 * time.Second

	// drainBatch is how many events one drain pass claims.
	drainBatch = 16
)

// Engine wires the stores, the memory pipeline and the router into
// the per-turn workflow. Each turn runs on its own goroutine; the
// engine holds no per-turn state.
type Engine struct {
	sessions *session.Store
	ledger   *session.Ledger
	tracker  *session.Tracker
	stories  *memory.StoryManager
	router   *router.Router

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates an engine. Call Start to launch the enrichment worker.
func New(sessions *session.Store, ledger *session.Ledger, tracker *session.Tracker, stories *memory.StoryManager, rt *router.Router) *Engine {
	return &Engine{
		sessions: sessions,
		ledger:   ledger,
		tracker:  tracker,
		stories:  stories,
		router:   rt,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// HandleTurn processes one user chat turn. An unknown or inactive
// session is recovered by creating a fresh one, never surfaced as an
// error. The response is ready before enrichment runs; stories catch
// up asynchronously.
func (e *Engine) HandleTurn(ctx context.Context, input *core.TurnInput) (*core.TurnResult, error) {
	if input.Message == "" {
		return nil, fmt.Errorf("empty message")
	}

	sess, err := e.ensureSession(ctx, input)
	if err != nil {
		return nil, err
	}

	turnID := input.TurnID
	if turnID == "" {
		turnID = uuid.New().String()
	}

	// Best-effort retrieval; empty context means "no prior history".
	contextSummary := e.stories.Retrieve(ctx, input.Message)

	state, err := e.tracker.Get(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("app state for session %s: %w", sess.ID, err)
	}

	decision := e.router.Decide(ctx, input.Message, contextSummary, state.CurrentApp)

	eventApp := state.CurrentApp
	switch decision.Action {
	case core.ActionOpenApp:
		prev, err := e.tracker.Set(ctx, sess.ID, decision.AppToOpen)
		if err != nil {
			return nil, fmt.Errorf("apply transition: %w", err)
		}
		eventApp = decision.AppToOpen
		log.Printf("[ENGINE] Session %s opened %s (was %s)", sess.ID, decision.AppToOpen, displayApp(prev))
	case core.ActionReturnOverview:
		if _, err := e.tracker.Set(ctx, sess.ID, ""); err != nil {
			return nil, fmt.Errorf("apply transition: %w", err)
		}
		eventApp = ""
	}
	if eventApp == "" {
		eventApp = core.ChatApp
	}

	_, err = e.ledger.Append(ctx, sess.ID, eventApp, "user_interaction", map[string]any{
		"message":  input.Message,
		"response": decision.Response,
		"action":   string(decision.Action),
	}, turnID)
	if err != nil {
		return nil, fmt.Errorf("append turn event: %w", err)
	}

	e.Wake()

	return &core.TurnResult{
		Response:   decision.Response,
		SessionID:  sess.ID,
		Action:     decision.Action,
		AppToOpen:  decision.AppToOpen,
		Confidence: decision.Confidence,
	}, nil
}

// RecordAppAction logs an explicit app submission (ideation data,
// vibe_studio generation, design image, gmail draft/send) as a ledger
// event and wakes the enrichment worker. An open_app action also moves
// the session into that app.
func (e *Engine) RecordAppAction(ctx context.Context, sessionID string, app core.App, action string, payload map[string]any) (*core.ContextEvent, error) {
	if action == "open_app" {
		if _, err := e.tracker.Set(ctx, sessionID, string(app)); err != nil {
			return nil, fmt.Errorf("open app: %w", err)
		}
	}

	event, err := e.ledger.Append(ctx, sessionID, string(app), action, payload, "")
	if err != nil {
		return nil, err
	}

	e.Wake()
	return event, nil
}

// Wake nudges the enrichment worker. Non-blocking; a pending signal
// already covers new work.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Start launches the background enrichment worker.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.runWorker()
	log.Printf("[ENGINE] Enrichment worker started")
}

// Stop shuts the worker down and waits for the in-flight drain.
func (e *Engine) Stop() {
	close(e.stop)
	e.wg.Wait()
}

// runWorker drains unsummarized ledger events into the story index.
// The ledger's summarized flag is the durable queue: an event is only
// marked after its story is indexed, so a crash or an embedding outage
// means redelivery, not loss. At-least-once is fine since the turn ID
// already dedupes the ledger side and a duplicate story is harmless.
func (e *Engine) runWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-e.wake:
		case <-ticker.C:
		}
		e.drain()
	}
}

func (e *Engine) drain() {
	ctx := context.Background()

	for {
		events, err := e.ledger.Unsummarized(ctx, drainBatch)
		if err != nil {
			log.Printf("[ENGINE] Unsummarized scan failed: %v", err)
			return
		}
		if len(events) == 0 {
			return
		}

		for _, event := range events {
			userID := ""
			if sess, err := e.sessions.Get(ctx, event.SessionID); err == nil {
				userID = sess.UserID
			}

			if _, err := e.stories.RecordEvent(ctx, event, userID); err != nil {
				// Leave the event unsummarized; the next pass retries.
				log.Printf("[ENGINE] Enrichment failed for event %s, will retry: %v", event.ID, err)
				return
			}
			if err := e.ledger.MarkSummarized(ctx, event.ID); err != nil {
				log.Printf("[ENGINE] Mark summarized failed for event %s: %v", event.ID, err)
				return
			}
		}

		if len(events) < drainBatch {
			return
		}
	}
}

func (e *Engine) ensureSession(ctx context.Context, input *core.TurnInput) (*core.Session, error) {
	if input.SessionID != "" {
		sess, err := e.sessions.Get(ctx, input.SessionID)
		if err == nil && sess.Active {
			return sess, nil
		}
		log.Printf("[ENGINE] Session %s unusable, starting fresh", input.SessionID)
	}
	return e.sessions.Create(ctx, input.UserID)
}

func displayApp(app string) string {
	if app == "" {
		return "overview"
	}
	return app
}
