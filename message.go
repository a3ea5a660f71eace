package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is an enumeration of the types of messages in the JSON-RPC protocol.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeNotification MessageType = "notification"
	MessageTypeResponse     MessageType = "response"
)

// Message is a wrapper around the different types of JSON-RPC messages (Request, Notification, Response).
// A JSON-RPC error is carried as a Response with Error set, not as a fourth variant.
type Message struct {
	Type                MessageType
	JsonRpcRequest      *Request
	JsonRpcNotification *Notification
	JsonRpcResponse     *Response
}

func (m *Message) Method() string {
	switch m.Type {
	case MessageTypeRequest:
		return m.JsonRpcRequest.Method
	case MessageTypeNotification:
		return m.JsonRpcNotification.Method
	default:
		return ""
	}
}

// MarshalJSON is a custom JSON marshaler for the Message type.
func (m *Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageTypeRequest:
		return json.Marshal(m.JsonRpcRequest)
	case MessageTypeNotification:
		return json.Marshal(m.JsonRpcNotification)
	case MessageTypeResponse:
		return json.Marshal(m.JsonRpcResponse)
	default:
		return nil, errors.New("unknown message type, couldn't marshal")
	}
}

// NewNotificationMessage creates a new JSON-RPC message of type Notification.
func NewNotificationMessage(notification *Notification) *Message {
	return &Message{
		Type:                MessageTypeNotification,
		JsonRpcNotification: notification,
	}
}

// NewRequestMessage creates a new JSON-RPC message of type Request.
func NewRequestMessage(request *Request) *Message {
	return &Message{
		Type:           MessageTypeRequest,
		JsonRpcRequest: request,
	}
}

// NewResponseMessage creates a new JSON-RPC message of type Response.
func NewResponseMessage(response *Response) *Message {
	return &Message{
		Type:            MessageTypeResponse,
		JsonRpcResponse: response,
	}
}

// NewErrorResponse builds a Response carrying an error object for the given request id.
// Only the dispatcher is expected to call this; handlers never construct JSON-RPC
// error objects themselves.
func NewErrorResponse(id RequestId, code int, message string, data interface{}) *Response {
	return &Response{
		Id:      id,
		Jsonrpc: Version,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// NewRequest builds a Request with marshaled parameters.
func NewRequest(method string, parameters interface{}) (*Request, error) {
	req := &Request{Jsonrpc: Version, Method: method}
	var err error
	req.Params, err = asParameters(method, parameters)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// NewNotification builds a Notification with marshaled parameters.
func NewNotification(method string, parameters interface{}) (*Notification, error) {
	n := &Notification{Jsonrpc: Version, Method: method}
	var err error
	n.Params, err = asParameters(method, parameters)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func asParameters(method string, parameters interface{}) (json.RawMessage, error) {
	switch actual := parameters.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(actual), nil
	case []byte:
		return actual, nil
	case json.RawMessage:
		return actual, nil
	default:
		data, err := json.Marshal(actual)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal jsonrpc parameters: [method:%v, parameters: %+v] %w", method, parameters, err)
		}
		return data, nil
	}
}
