package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error is a coded error with the operation that failed and optional
// diagnostic context (URI, bucket, key, expected digest and so on).
type Error struct {
	// Code classifies the failure.
	Code ErrorCode

	// Op is the operation that failed (e.g. "s3.load", "saver.commit").
	Op string

	// Message is a human-readable description of the failure.
	Message string

	// Err is the underlying cause, if any.
	Err error

	// Context holds key/value diagnostics rendered in the error string.
	Context map[string]string
}

// New creates an Error with the given code and message.
func New(code ErrorCode, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps err.
func Wrap(err error, code ErrorCode, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " ")))
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: CodeNotFound})
// works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Op == "" || t.Op == e.Op)
}

// WithContext adds a diagnostic key/value pair and returns the error.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeUnknown if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &Error{Code: code})
}

// IsNotFound reports whether err indicates a missing object.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsIntegrity reports whether err indicates a digest mismatch.
func IsIntegrity(err error) bool {
	return HasCode(err, CodeIntegrity)
}

// IsCapacity reports whether err indicates the max-objects limit was exceeded.
func IsCapacity(err error) bool {
	return HasCode(err, CodeCapacityExceeded)
}

// IsProtocol reports whether err indicates a client/backend protocol violation.
func IsProtocol(err error) bool {
	return HasCode(err, CodeProtocol)
}

// IsConnectivity reports whether err indicates the backend could not be
// reached or refused the credentials, as opposed to the object not existing.
func IsConnectivity(err error) bool {
	return HasCode(err, CodeNetwork) || HasCode(err, CodeUnauthorized) || HasCode(err, CodeForbidden)
}

// Retryable reports whether any coded error in err's chain is transient.
func Retryable(err error) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Retryable() {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}
