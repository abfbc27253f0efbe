package core

import "fmt"

// StepStatus represents the execution status of a step or scenario
type StepStatus int

const (
	StatusPending   StepStatus = iota // Not yet started
	StatusRunning                     // Currently executing
	StatusPassed                      // Completed successfully
	StatusFailed                      // Assertion or lookup failed
	StatusErrored                     // Unexpected error (driver crash, network)
	StatusSkipped                     // A previous step failed
	StatusUndefined                   // No step definition matched the sentence
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	case StatusUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped, StatusUndefined:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// MarshalText encodes the status by name so result files stay readable.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *StepStatus) UnmarshalText(b []byte) error {
	for c := StatusPending; c <= StatusUndefined; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown step status %q", b)
}

// ErrorKind classifies failures raised by the helper layer
type ErrorKind int

const (
	KindNone         ErrorKind = iota // No error
	KindNotFound                      // No element matched within the timeout
	KindIndex                         // Requested index beyond match count
	KindPrecondition                  // Required working state missing
	KindAssertion                     // Observed value differs from expected
	KindConfig                        // Unsupported configuration choice
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindIndex:
		return "index"
	case KindPrecondition:
		return "precondition"
	case KindAssertion:
		return "assertion"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Category groups kinds for reporting.
func (k ErrorKind) Category() string {
	switch k {
	case KindNotFound, KindIndex:
		return "element"
	case KindAssertion, KindPrecondition:
		return "assertion"
	case KindConfig:
		return "config"
	case KindNone:
		return ""
	default:
		return "unknown"
	}
}
