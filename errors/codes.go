// Package errors provides the error vocabulary shared by the artifact sync engine.
// It extends Go's standard error handling with structured error codes, retry
// classification and context preservation so callers can tell an integrity
// failure from a missing object or an unreachable backend.
package errors

// ErrorCode represents a specific error condition in the sync engine.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Resource errors.

	// CodeNotFound indicates a requested object or record does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeConflict indicates a resource state conflict that prevents the operation.
	CodeConflict ErrorCode = "CONFLICT"

	// Integrity errors.

	// CodeIntegrity indicates fetched content does not match the recorded digest,
	// or no historical version of an object matches it.
	CodeIntegrity ErrorCode = "INTEGRITY_FAILED"

	// CodeCapacityExceeded indicates a reference expanded to more objects than allowed.
	CodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"

	// CodeProtocol indicates the backend and client disagree about the protocol,
	// for example an unknown artifact state or a dangling client reference.
	CodeProtocol ErrorCode = "PROTOCOL_VIOLATION"

	// Permission errors.

	// CodeUnauthorized indicates the request lacks valid authentication credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeForbidden indicates the authenticated principal lacks permission for the operation.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Infrastructure errors.

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates the rate limit has been exceeded.
	CodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnavailable indicates the service is temporarily unavailable.
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Generic errors.

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Retryable reports whether errors carrying this code are worth retrying at a
// higher level. Integrity, capacity and protocol failures never are.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeNetwork, CodeTimeout, CodeRateLimit, CodeUnavailable:
		return true
	default:
		return false
	}
}
