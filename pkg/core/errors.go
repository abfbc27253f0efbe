package core

import (
	"errors"
	"fmt"
)

// Error is the structured failure raised by the helper layer.
// Every failure reaches the scenario runner as one of these kinds.
type Error struct {
	Kind    ErrorKind
	Message string            // Human-readable message shown in the scenario output
	Details map[string]string // Additional context (xpath, expected, actual, ...)
	Cause   error             // Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind with no message, so sentinel
// kinds can be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// WithCause returns a copy of the error with the given cause
func (e *Error) WithCause(cause error) *Error {
	return &Error{
		Kind:    e.Kind,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(msg string) *Error {
	return &Error{
		Kind:    e.Kind,
		Message: msg,
		Details: e.Details,
		Cause:   e.Cause,
	}
}

// WithDetail returns a copy of the error with one more detail entry
func (e *Error) WithDetail(key, value string) *Error {
	merged := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		merged[k] = v
	}
	merged[key] = value
	return &Error{
		Kind:    e.Kind,
		Message: e.Message,
		Details: merged,
		Cause:   e.Cause,
	}
}

// Sentinel kinds for errors.Is
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrIndex        = &Error{Kind: KindIndex}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrAssertion    = &Error{Kind: KindAssertion}
	ErrConfig       = &Error{Kind: KindConfig}
)

// NotFound reports that no element satisfied a locator condition in time.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// IndexOutOfRange reports a requested match index beyond the match count.
func IndexOutOfRange(index, count int) *Error {
	return &Error{
		Kind: KindIndex,
		Message: fmt.Sprintf(
			`Requested Index: "%d" | Actual Count: "%d" | Element Index should be less than actual elements count.`,
			index, count),
		Details: map[string]string{
			"index": fmt.Sprint(index),
			"count": fmt.Sprint(count),
		},
	}
}

// Precondition reports missing working state.
func Precondition(msg string) *Error {
	return &Error{Kind: KindPrecondition, Message: msg}
}

// MissingAttribute reports a working-state attribute that was never set.
func MissingAttribute(attr string) *Error {
	return &Error{
		Kind:    KindPrecondition,
		Message: fmt.Sprintf(`Context is missing required attribute "%s".`, attr),
		Details: map[string]string{"attribute": attr},
	}
}

// Assertion reports an observed value that differs from the expected one.
func Assertion(msg string) *Error {
	return &Error{Kind: KindAssertion, Message: msg}
}

// Mismatch is an assertion failure that carries both values.
func Mismatch(what, expected, actual string) *Error {
	return &Error{
		Kind:    KindAssertion,
		Message: fmt.Sprintf(`Expected text for "%s" was "%s" but got "%s" instead.`, what, expected, actual),
		Details: map[string]string{
			"what":     what,
			"expected": expected,
			"actual":   actual,
		},
	}
}

// ConfigError reports an unsupported configuration choice.
func ConfigError(msg string) *Error {
	return &Error{Kind: KindConfig, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or KindNone.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
