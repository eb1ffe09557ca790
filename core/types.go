package core

import (
	"time"
)

// App identifies one of the routable apps in the Steve Connect ecosystem.
// The set is closed: router output naming any other app is rejected and
// normalized before it can touch persisted state.
type App string

const (
	AppIdeation   App = "ideation"
	AppVibeStudio App = "vibe_studio"
	AppDesign     App = "design"
	AppGmail      App = "gmail"
)

// ChatApp is the pseudo-app name used on ledger events for plain
// conversational turns. It is not routable: "open chat" means stay.
const ChatApp = "chat"

// KnownApps returns the closed set of routable apps in workflow order
// (ideation -> vibe_studio -> design -> gmail).
func KnownApps() []App {
	return []App{AppIdeation, AppVibeStudio, AppDesign, AppGmail}
}

// ParseApp validates a raw app name against the known set.
func ParseApp(raw string) (App, bool) {
	switch App(raw) {
	case AppIdeation, AppVibeStudio, AppDesign, AppGmail:
		return App(raw), true
	}
	return "", false
}

// Session is a bounded sequence of interactions tied to one user.
// Sessions are never hard-deleted, only deactivated.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Active    bool      `json:"active"`
}

// ContextEvent is one append-only ledger entry: something a user did in
// an app during a session. Immutable once written.
type ContextEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	App       string         `json:"app_name"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload"`
	// TurnID is the idempotency key for the originating turn. Appending
	// the same TurnID twice yields exactly one event.
	TurnID    string    `json:"turn_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AppState is the current app position of a session. One live row per
// session; each update records the previous app so "go back" semantics
// are always recoverable.
type AppState struct {
	SessionID   string         `json:"session_id"`
	CurrentApp  string         `json:"current_app"`  // empty = overview
	PreviousApp string         `json:"previous_app"` // empty = overview
	StateData   map[string]any `json:"state_data,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Action is the enumerated tag the orchestrator returns to the UI
// layer. ActionOpenApp is the one that triggers a client-side switch.
type Action string

const (
	ActionOpenApp        Action = "open_app"
	ActionContinueChat   Action = "continue_chat"
	ActionReturnOverview Action = "return_overview"
)

// Decision is a validated routing decision. AppToOpen is only set when
// Action is ActionOpenApp, and always names a known app.
type Decision struct {
	Response   string  `json:"response"`
	Action     Action  `json:"action"`
	AppToOpen  string  `json:"app_to_open,omitempty"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// TurnInput carries one user chat turn into the engine.
type TurnInput struct {
	UserID    string
	SessionID string // empty = start a new session
	Message   string
	// TurnID deduplicates client retries. Generated server-side when
	// the client does not supply one.
	TurnID string
}

// TurnResult is what one chat turn produces.
type TurnResult struct {
	Response   string  `json:"response"`
	SessionID  string  `json:"session_id"`
	Action     Action  `json:"action"`
	AppToOpen  string  `json:"app_to_open,omitempty"`
	Confidence float64 `json:"confidence"`
}
