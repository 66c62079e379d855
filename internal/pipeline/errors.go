package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. Every kind is terminal.
type Kind string

const (
	KindPrecondition  Kind = "precondition"  // Required input directory missing.
	KindLaunch        Kind = "launch"        // The tool could not be started.
	KindProcess       Kind = "process"       // The tool exited non-zero.
	KindPostcondition Kind = "postcondition" // The tool exited 0 but left no model.
	KindFilesystem    Kind = "filesystem"    // Creating a directory failed.
	KindInterrupted   Kind = "interrupted"   // The context was cancelled mid-run.
)

// Error describes why the pipeline stopped.
type Error struct {
	Kind     Kind
	Step     string // Step label, empty for checks outside a step.
	Path     string // Relevant path, if any.
	ExitCode int    // Tool exit status for KindProcess.
	Hint     string // Likely cause, when one is known.
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	switch e.Kind {
	case KindPrecondition:
		msg = fmt.Sprintf("required directory not found: %s", e.Path)
	case KindLaunch:
		msg = fmt.Sprintf("%s: could not start tool", e.Step)
	case KindProcess:
		msg = fmt.Sprintf("%s failed with exit code %d", e.Step, e.ExitCode)
	case KindPostcondition:
		msg = fmt.Sprintf("%s produced no model at %s", e.Step, e.Path)
	case KindFilesystem:
		msg = fmt.Sprintf("cannot create directory %s", e.Path)
	case KindInterrupted:
		msg = fmt.Sprintf("%s interrupted", e.Step)
	default:
		msg = string(e.Kind)
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsKind reports whether err is a pipeline *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
