package core

import (
	"errors"
	"fmt"
)

// ErrSessionConflict is returned by Start when the owner already has a
// running capture session. It is never retried automatically; the existing
// session must be stopped first.
var ErrSessionConflict = errors.New("a capture session is already running for this owner")

// ErrNotRunning is returned by Stop, Tick and Reset when no session is
// running. The auto-stop race produces this benignly: whichever of the manual
// stop and the timer loses simply observes the already-terminal state.
var ErrNotRunning = errors.New("no capture session is running")

// ErrBadCredentials is returned by identity providers for a failed login.
var ErrBadCredentials = errors.New("invalid username or password")

// ValidationError rejects a malformed input event. The event is not
// aggregated and the session keeps running.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: field '%s' %s", e.Field, e.Reason)
}

// PersistenceError wraps a failed durable-store operation. Callers keep their
// local state and may retry the whole operation; lifecycle writes are
// idempotent so a retry is always safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
