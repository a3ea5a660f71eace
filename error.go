package jsonrpc

// NewParsingError creates a response carrying a JSON-RPC parse error.
// Per spec, a response whose id could not be determined uses a nil id.
func NewParsingError(err error, data []byte) *Response {
	return NewErrorResponse(nil, ParseError, err.Error(), string(data))
}

// NewInternalError creates a response carrying a JSON-RPC internal error.
func NewInternalError(id RequestId, err error) *Response {
	return NewErrorResponse(id, InternalError, err.Error(), nil)
}

// NewInvalidRequest creates a response carrying a JSON-RPC invalid-request error.
func NewInvalidRequest(id RequestId, err error) *Response {
	return NewErrorResponse(id, InvalidRequest, err.Error(), nil)
}

// NewInvalidParams creates a response carrying a JSON-RPC invalid-params error.
func NewInvalidParams(id RequestId, err error) *Response {
	return NewErrorResponse(id, InvalidParams, err.Error(), nil)
}

// NewMethodNotFound creates a response carrying a JSON-RPC method-not-found error.
func NewMethodNotFound(id RequestId, method string) *Response {
	return NewErrorResponse(id, MethodNotFound, "method not found: "+method, nil)
}
