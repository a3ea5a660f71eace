package jsonrpc

// Version is the JSON-RPC protocol version.
const Version = "2.0"

const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Framework-reserved application error codes, outside the JSON-RPC
// pre-defined range but within the range the spec leaves implementations free
// to use (-32000 to -32099).
const (
	// ToolExecutionError is returned when a registered tool/handler fails.
	ToolExecutionError = -32000

	// SessionError is returned when a request references an unknown or expired session.
	SessionError = -32031
)

// Middleware-policy error codes, reserved for auth/ratelimit/forbidden short-circuits.
const (
	MiddlewareAuthError       = -32001
	MiddlewarePolicyError     = -32002
	MiddlewareRateLimitError  = -32003
)
