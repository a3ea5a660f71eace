package httpmcp

import (
	"github.com/goccy/go-json"
)

// frameKind classifies a raw JSON-RPC payload before it is handed to the
// dispatcher, consolidating the two incompatible probes the teacher carried
// (transport/base.MessageType and transport/server/base.MessageType) into
// one detector scoped to this transport.
type frameKind int

const (
	frameUnknown frameKind = iota
	frameRequest
	frameNotification
	frameBatch
)

type probe struct {
	Id     *json.RawMessage `json:"id"`
	Method string           `json:"method"`
}

// detectFrame inspects raw (already trimmed of leading whitespace) and
// reports what shape it has. Batch detection is a cheap leading-byte check;
// request/notification is the presence of "id".
func detectFrame(raw []byte) frameKind {
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) == 0 {
		return frameUnknown
	}
	if trimmed[0] == '[' {
		return frameBatch
	}
	var p probe
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return frameUnknown
	}
	if p.Method == "" {
		return frameUnknown
	}
	if p.Id == nil {
		return frameNotification
	}
	return frameRequest
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}
