package command

import (
	"errors"
	"fmt"
)

// Normalized dispatch errors.
var (
	ErrUnrecognizedCommand = errors.New("UNRECOGNIZED_COMMAND")
	ErrPreconditionFailed  = errors.New("PRECONDITION_FAILED")
	ErrExecutionFailed     = errors.New("EXECUTION_FAILED")
	ErrDuplicateCommand    = errors.New("DUPLICATE_COMMAND")
	ErrInvalidHandler      = errors.New("INVALID_HANDLER")
)

// Failure describes why a command ended in the Failed state.
type Failure struct {
	Kind   error  // ErrPreconditionFailed or ErrExecutionFailed
	Reason string // Human-readable, never empty
	Cause  error  // Underlying action error, if any
	Code   string // Normalized back-end code, if known
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%v: %s", f.Kind, f.Reason)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Kind
}

// KindCode returns the taxonomy code of the failure, e.g. "PRECONDITION_FAILED".
func (f *Failure) KindCode() string {
	if f == nil || f.Kind == nil {
		return ""
	}
	return f.Kind.Error()
}

// TransitionError is raised (via panic) when a lifecycle transition is illegal.
// Illegal transitions are programming errors in a handler, not runtime failures.
type TransitionError struct {
	Command string
	From    State
	To      State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("command %s: illegal transition %s -> %s", e.Command, e.From, e.To)
}
