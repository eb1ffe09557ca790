package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for the orchestrator. Callers classify with errors.Is.
//
// The best-effort subsystems (summarization, embedding) are never
// surfaced to the user: callers log and degrade. The send path errors
// are terminal for that action and reported to the caller.
var (
	// ErrInvalidSession marks an unknown or deactivated session.
	// Recoverable by creating a new session.
	ErrInvalidSession = errors.New("invalid or inactive session")

	// ErrGenerationUnavailable marks a failed text-generation call
	// after bounded retries.
	ErrGenerationUnavailable = errors.New("text generation unavailable")

	// ErrSummarizationUnavailable marks a failed narrative write. The
	// underlying event stays durable in the ledger regardless.
	ErrSummarizationUnavailable = errors.New("summarization unavailable")

	// ErrEmbeddingUnavailable marks an unreachable embedding
	// capability. Searches return empty instead of propagating this.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrInvalidRouterOutput marks router output that failed
	// validation against the known-app set. Always sanitized to a
	// no-op decision before reaching AppState.
	ErrInvalidRouterOutput = errors.New("invalid router output")

	// ErrRefreshFailed marks a token refresh exchange that failed
	// twice in a row. Users must reconnect the account.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// SendError reports a failed email send with a reason safe to show the
// caller. Not retried automatically.
type SendError struct {
	Reason string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %s", e.Reason)
}
