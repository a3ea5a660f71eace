package httpmcp

import (
	"fmt"
	"strings"
)

// frameSSE formats data as a single SSE "message" event, adapted from the
// teacher's transport/server/http/streamable.frameSSE.
func frameSSE(id uint64, data []byte) []byte {
	return []byte(fmt.Sprintf("id: %d\nevent: message\ndata: %s\n\n", id, strings.TrimSpace(string(data))))
}

// frameSSEComment formats a comment-only keepalive frame; SSE comments start
// with ':' and carry no event/data.
func frameSSEComment(text string) []byte {
	return []byte(": " + text + "\n\n")
}

// frameNDJSON appends a trailing newline so each JSON message is delimited
// for NDJSON-style readers, adapted from the teacher's frameJSON.
func frameNDJSON(data []byte) []byte {
	n := len(data)
	if n == 0 || data[n-1] == '\n' {
		return data
	}
	framed := make([]byte, n+1)
	copy(framed, data)
	framed[n] = '\n'
	return framed
}
