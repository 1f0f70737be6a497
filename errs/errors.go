// Package errs defines the error taxonomy shared across the mapping server.
//
// The server's public operations return a *Error (or nil) for the failures
// they classify, so callers can branch on Kind without string matching.
// Errors passed through unchanged from a collaborator (for example a
// visualization publisher or the checkpoint encoder) are not *Error values,
// and KindOf reports Unknown for them.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for caller-side branching. It intentionally
// mirrors the vocabulary of the design doc rather than Go idioms like
// os.IsNotExist, since most of these have no OS analog (e.g. TransientUnavailable).
type Kind int

const (
	// Unknown is the zero value; should not appear on errors returned from this module.
	Unknown Kind = iota
	// InvalidArgument covers malformed robot names, paths, or partial ids.
	InvalidArgument
	// NotFound covers missing missions, sensors, or deletion targets.
	NotFound
	// TransientUnavailable means the caller should retry later (e.g. pose not yet merged).
	TransientUnavailable
	// Terminal means retrying will never succeed (e.g. pose older than any vertex).
	Terminal
	// CommandFailed means a submap or global command returned an error.
	CommandFailed
	// IOFailure covers submap load, checkpoint, or map delete failures.
	IOFailure
	// ShuttingDown means the operation was rejected because shutdown was requested.
	ShuttingDown
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case TransientUnavailable:
		return "TransientUnavailable"
	case Terminal:
		return "Terminal"
	case CommandFailed:
		return "CommandFailed"
	case IOFailure:
		return "IOFailure"
	case ShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by this module's public operations.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New creates a *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error, preserving it as the cause.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/As see through to the underlying cause. (*Error has no
// Cause method, so github.com/pkg/errors.Cause stops at the *Error itself.)
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, else Unknown.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return Unknown
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
