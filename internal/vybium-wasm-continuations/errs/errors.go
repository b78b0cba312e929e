// Package errs defines the error taxonomy shared by every continuation
// component. Each failure carries a Code so callers can tell a bad
// configuration from a soundness violation or a storage failure.
package errs

import "fmt"

// Code classifies a continuation error
type Code int

const (
	// CodeUnknown represents an unclassified error
	CodeUnknown Code = iota

	// CodeInvalidConfig is raised before tracing begins (row budget too
	// small, negative padding or skip counts, unknown backend)
	CodeInvalidConfig

	// CodeInvalidInput represents a malformed event log or program image
	CodeInvalidInput

	// CodeSoundness represents a violation that would let a proof assert a
	// false execution. These are never recovered.
	CodeSoundness

	// CodeResource represents a storage failure in a slice backend. A retry
	// with a different backend or location may succeed.
	CodeResource

	// CodeConsistency represents a mismatch between the program image and
	// the event log
	CodeConsistency
)

// String returns the name of the code
func (c Code) String() string {
	switch c {
	case CodeInvalidConfig:
		return "invalid-config"
	case CodeInvalidInput:
		return "invalid-input"
	case CodeSoundness:
		return "soundness"
	case CodeResource:
		return "resource"
	case CodeConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Error is a classified continuation error
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrInvalidConfig = &Error{Code: CodeInvalidConfig}
	ErrInvalidInput  = &Error{Code: CodeInvalidInput}
	ErrSoundness     = &Error{Code: CodeSoundness}
	ErrResource      = &Error{Code: CodeResource}
	ErrConsistency   = &Error{Code: CodeConsistency}
)

// Error returns the error message
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("continuation error [%s]: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("continuation error [%s]: %s", e.Code, msg)
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error has the same code as target
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a classified error with a formatted message
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around cause
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Config is shorthand for New(CodeInvalidConfig, ...)
func Config(format string, args ...any) *Error {
	return New(CodeInvalidConfig, format, args...)
}

// Input is shorthand for New(CodeInvalidInput, ...)
func Input(format string, args ...any) *Error {
	return New(CodeInvalidInput, format, args...)
}

// Soundness is shorthand for New(CodeSoundness, ...)
func Soundness(format string, args ...any) *Error {
	return New(CodeSoundness, format, args...)
}

// Resource wraps an I/O failure as a resource error
func Resource(cause error, format string, args ...any) *Error {
	return Wrap(CodeResource, cause, format, args...)
}

// Consistency is shorthand for New(CodeConsistency, ...)
func Consistency(format string, args ...any) *Error {
	return New(CodeConsistency, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return CodeUnknown
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}
