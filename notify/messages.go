// Package notify builds typed JSON-RPC notification frames over a
// stream.Manager, generalizing the teacher's ad hoc
// Session.sendNotification marshal-by-hand call into one place that knows
// every notification shape the server can emit.
package notify

import (
	"encoding/json"

	"github.com/mutablelogic/mcp-streamhttp/internal/pointer"
)

// Method names the server may push as notifications (spec.md §5).
const (
	MethodProgress         = "notifications/progress"
	MethodMessage          = "notifications/message"
	MethodResourceUpdated  = "notifications/resources/updated"
	MethodToolListChanged  = "notifications/tools/list_changed"
	MethodResourceListChanged = "notifications/resources/list_changed"
	MethodPromptListChanged  = "notifications/prompts/list_changed"
	MethodCancelled        = "notifications/cancelled"
)

// ProgressParams reports incremental progress against a token a client
// supplied in a request's _meta.progressToken.
type ProgressParams struct {
	ProgressToken interface{} `json:"progressToken"`
	Progress      float64     `json:"progress"`
	Total         *float64    `json:"total,omitempty"`
	Message       *string     `json:"message,omitempty"`
}

// NewProgress builds ProgressParams, using internal/pointer to keep the
// optional total/message fields nil unless a caller actually sets them.
func NewProgress(token interface{}, progress float64, total *float64, message string) ProgressParams {
	p := ProgressParams{ProgressToken: token, Progress: progress, Total: total}
	if message != "" {
		p.Message = pointer.Ref(message)
	}
	return p
}

// LogLevel mirrors the RFC 5424 severities MCP logging notifications use.
type LogLevel string

const (
	LogDebug     LogLevel = "debug"
	LogInfo      LogLevel = "info"
	LogNotice    LogLevel = "notice"
	LogWarning   LogLevel = "warning"
	LogError     LogLevel = "error"
	LogCritical  LogLevel = "critical"
	LogAlert     LogLevel = "alert"
	LogEmergency LogLevel = "emergency"
)

// LogParams carries a single structured log record pushed to the client.
type LogParams struct {
	Level  LogLevel    `json:"level"`
	Logger *string     `json:"logger,omitempty"`
	Data   interface{} `json:"data"`
}

// NewLog builds LogParams, leaving Logger nil when logger is empty.
func NewLog(level LogLevel, logger string, data interface{}) LogParams {
	p := LogParams{Level: level, Data: data}
	if logger != "" {
		p.Logger = pointer.Ref(logger)
	}
	return p
}

// ResourceUpdatedParams announces that a subscribed resource changed.
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}

// ListChangedScope identifies which registry a list_changed notification
// refers to. Method names are underscore_form on the wire; scope values are
// camelCase to match session.Capabilities' field names.
type ListChangedScope string

const (
	ScopeTools     ListChangedScope = "toolsListChanged"
	ScopeResources ListChangedScope = "resourcesListChanged"
	ScopePrompts   ListChangedScope = "promptsListChanged"
)

// Method returns the wire method name for this scope's list_changed event.
func (s ListChangedScope) Method() string {
	switch s {
	case ScopeTools:
		return MethodToolListChanged
	case ScopeResources:
		return MethodResourceListChanged
	case ScopePrompts:
		return MethodPromptListChanged
	default:
		return ""
	}
}

// CancelledParams reports that a request was cancelled before completion.
type CancelledParams struct {
	RequestID interface{} `json:"requestId"`
	Reason    *string     `json:"reason,omitempty"`
}

// NewCancelled builds CancelledParams, leaving Reason nil when reason is empty.
func NewCancelled(requestID interface{}, reason string) CancelledParams {
	p := CancelledParams{RequestID: requestID}
	if reason != "" {
		p.Reason = pointer.Ref(reason)
	}
	return p
}

func marshalParams(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}
