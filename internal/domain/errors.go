package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// InvalidStateError means the entity is not in the lifecycle stage the
// requested transition expects. Never retryable; the caller must refresh
// its view.
type InvalidStateError struct {
	Entity string
	State  string
}

func (e InvalidStateError) Error() string {
	if e.Entity == "" {
		return "invalid state"
	}
	return fmt.Sprintf("%s is in state %q and cannot accept this transition", e.Entity, e.State)
}

func (e InvalidStateError) Is(target error) bool {
	_, ok := target.(InvalidStateError)
	if ok {
		return true
	}
	_, ok = target.(*InvalidStateError)
	return ok
}

// ErrInvalidState is the sentinel error for wrong-state transitions.
var ErrInvalidState = InvalidStateError{}

// ForbiddenError means the actor lacks the role the operation requires.
type ForbiddenError struct {
	Actor     string
	Operation string
}

func (e ForbiddenError) Error() string {
	if e.Operation == "" {
		return "forbidden"
	}
	return fmt.Sprintf("actor is not allowed to %s", e.Operation)
}

func (e ForbiddenError) Is(target error) bool {
	_, ok := target.(ForbiddenError)
	if ok {
		return true
	}
	_, ok = target.(*ForbiddenError)
	return ok
}

// ErrForbidden is the sentinel error for role violations.
var ErrForbidden = ForbiddenError{}

// LimitExceededError means a per-user cap was reached.
type LimitExceededError struct {
	Limit int
	What  string
}

func (e LimitExceededError) Error() string {
	if e.What == "" {
		return "limit exceeded"
	}
	return fmt.Sprintf("limit of %d %s exceeded", e.Limit, e.What)
}

func (e LimitExceededError) Is(target error) bool {
	_, ok := target.(LimitExceededError)
	if ok {
		return true
	}
	_, ok = target.(*LimitExceededError)
	return ok
}

// ErrLimitExceeded is the sentinel error for cap violations.
var ErrLimitExceeded = LimitExceededError{}

// InvalidInputError means the request payload is malformed in a way the
// user can correct inline.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input"
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e InvalidInputError) Is(target error) bool {
	_, ok := target.(InvalidInputError)
	if ok {
		return true
	}
	_, ok = target.(*InvalidInputError)
	return ok
}

// ErrInvalidInput is the sentinel error for malformed requests.
var ErrInvalidInput = InvalidInputError{}

// ChatUnavailableError means the chat is frozen or closed and rejects new
// messages. The condition is durable, not transient.
type ChatUnavailableError struct {
	ChatID string
	Reason string
}

func (e ChatUnavailableError) Error() string {
	if e.Reason == "" {
		return "chat unavailable"
	}
	return fmt.Sprintf("chat unavailable: %s", e.Reason)
}

func (e ChatUnavailableError) Is(target error) bool {
	_, ok := target.(ChatUnavailableError)
	if ok {
		return true
	}
	_, ok = target.(*ChatUnavailableError)
	return ok
}

// ErrChatUnavailable is the sentinel error for frozen/closed chats.
var ErrChatUnavailable = ChatUnavailableError{}

// TransientError wraps a storage or network blip. Retryable with backoff;
// every mutating operation is either idempotent by reference or guarded by
// a conditional update, so a retry is safe.
type TransientError struct {
	Cause error
}

func (e TransientError) Error() string {
	if e.Cause == nil {
		return "transient failure"
	}
	return fmt.Sprintf("transient failure: %v", e.Cause)
}

func (e TransientError) Unwrap() error { return e.Cause }

func (e TransientError) Is(target error) bool {
	_, ok := target.(TransientError)
	if ok {
		return true
	}
	_, ok = target.(*TransientError)
	return ok
}

// ErrTransient is the sentinel error for retryable failures.
var ErrTransient = TransientError{}
