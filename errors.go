package codec2

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrBadState     = errors.New("operation not permitted in current state")
	ErrNotSupported = errors.New("not supported")
	ErrTimedOut     = errors.New("operation timed out")
)

// ActionCode classifies how the owner of a session should react to an
// error reported through CallbackReceiver.OnError.
type ActionCode int

const (
	ActionFatal       ActionCode = iota // Session is unusable; release it
	ActionTransient                     // Retrying later may succeed
	ActionRecoverable                   // Usable again after stop or flush
)

func (a ActionCode) String() string {
	switch a {
	case ActionFatal:
		return "fatal"
	case ActionTransient:
		return "transient"
	case ActionRecoverable:
		return "recoverable"
	default:
		return "unknown"
	}
}

// StateError reports an operation attempted in a session state that does
// not permit it. It matches ErrBadState under errors.Is.
type StateError struct {
	Op    string // Operation that was rejected
	State State  // State the session was in
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrBadState
}
