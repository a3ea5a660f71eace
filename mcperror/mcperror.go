// Package mcperror defines the domain error type handlers return. Handlers
// never construct JSON-RPC error objects themselves; the dispatcher (package
// rpc) is the sole place that maps a Kind to a JSON-RPC error code.
package mcperror

import "fmt"

// Kind tags the class of failure a handler or the transport layer observed.
type Kind string

const (
	// InvalidParameters means the request params did not satisfy the method's
	// schema or semantic constraints.
	InvalidParameters Kind = "invalid_parameters"

	// MethodNotFound is produced exclusively by the dispatcher when no handler
	// is registered for a method; handlers never return it themselves.
	MethodNotFound Kind = "method_not_found"

	// LifecycleViolation means the request was made in the wrong session state,
	// e.g. a non-initialize method before notifications/initialized in strict mode.
	LifecycleViolation Kind = "lifecycle_violation"

	// SessionErr means the session id referenced by the request is unknown or expired.
	SessionErr Kind = "session_error"

	// ToolExecution means a registered tool/handler ran and failed.
	ToolExecution Kind = "tool_execution_failed"

	// Internal means an unexpected programmer or runtime error.
	Internal Kind = "internal"

	// AuthErr means a middleware rejected the request for missing or invalid credentials.
	AuthErr Kind = "auth_error"

	// PolicyErr means a middleware rejected the request on a policy check (e.g. forbidden method).
	PolicyErr Kind = "policy_error"

	// RateLimitErr means a middleware rejected the request for exceeding a rate limit.
	RateLimitErr Kind = "rate_limit_error"
)

// Error is the domain error type returned by handler functions. It carries no
// notion of JSON-RPC request id or wire shape — that belongs to the dispatcher.
type Error struct {
	Kind    Kind
	Message string
	Data    interface{}
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: cause.Error(), cause: cause}
}

// WithData attaches additional structured data to the error and returns it.
func (e *Error) WithData(data interface{}) *Error {
	e.Data = data
	return e
}

// InvalidParams is a convenience constructor for the common invalid-parameters case.
func InvalidParams(message string) *Error { return New(InvalidParameters, message) }

// LifecycleErr is a convenience constructor for a lifecycle-violation error.
func LifecycleErr(message string) *Error { return New(LifecycleViolation, message) }

// SessionNotFound is a convenience constructor for an unknown/expired session error.
func SessionNotFound(id string) *Error {
	return New(SessionErr, fmt.Sprintf("session %q not found or expired", id))
}

// ToolFailed is a convenience constructor wrapping a tool's own failure.
func ToolFailed(cause error) *Error {
	return Wrap(ToolExecution, cause)
}

// InternalErr wraps an unexpected error as Internal.
func InternalErr(cause error) *Error {
	return Wrap(Internal, cause)
}

// Unauthorized is a convenience constructor for an auth-middleware rejection.
func Unauthorized(message string) *Error { return New(AuthErr, message) }

// Forbidden is a convenience constructor for a policy-middleware rejection.
func Forbidden(message string) *Error { return New(PolicyErr, message) }

// RateLimited is a convenience constructor for a rate-limit-middleware rejection.
func RateLimited(message string) *Error { return New(RateLimitErr, message) }
