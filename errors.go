package lilt

import (
	"fmt"

	"github.com/benbjohnson/lilt/ir"
	"github.com/pkg/errors"
)

var (
	ErrNoStateAvailable = errors.New("lilt: no state available")
	ErrStateBlocked     = errors.New("lilt: state blocked")
	ErrEntryNotFound    = errors.New("lilt: entry function not found")
	ErrUnsatisfiable    = errors.New("lilt: constraints unsatisfiable")
)

// ErrorKind classifies a step failure.
type ErrorKind int

const (
	// LookupFailure means no instruction exists at a required position.
	LookupFailure = ErrorKind(iota + 1)

	// UnmodeledConstruct marks a skipped Undefined node. It is reported as
	// a diagnostic and never halts a state.
	UnmodeledConstruct

	// CallTargetUnresolved means a call target matched no known function.
	CallTargetUnresolved
)

func (k ErrorKind) String() string {
	switch k {
	case LookupFailure:
		return "lookup failure"
	case UnmodeledConstruct:
		return "unmodeled construct"
	case CallTargetUnresolved:
		return "call target unresolved"
	default:
		return fmt.Sprintf("ErrorKind<%d>", int(k))
	}
}

// StepError is returned when a single step cannot complete.
type StepError struct {
	Kind ErrorKind
	Pos  ir.Pos
	Err  error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("lilt: %s at %s", e.Kind, e.Pos)
	}
	return fmt.Sprintf("lilt: %s at %s: %s", e.Kind, e.Pos, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error { return e.Err }

func stepErrorf(kind ErrorKind, pos ir.Pos, format string, args ...interface{}) error {
	return &StepError{Kind: kind, Pos: pos, Err: errors.Errorf(format, args...)}
}

// StepErrorKind returns the kind of a StepError anywhere in err's chain.
func StepErrorKind(err error) (ErrorKind, bool) {
	var e *StepError
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
