package sse

import "fmt"

// frameEndpoint formats the one-time "endpoint" event a client uses to learn
// where to POST its messages.
func frameEndpoint(uri string) []byte {
	return []byte(fmt.Sprintf("event: endpoint\ndata: %s\n\n", uri))
}

// frameMessage formats a JSON-RPC payload as an SSE "message" event,
// adapted from the teacher's sse.frameSSE.
func frameMessage(data []byte) []byte {
	return []byte(fmt.Sprintf("event: message\ndata: %s\n\n", data))
}
