package httpmcp

import (
	"fmt"
	"net/http"
)

// flushWriter wraps http.ResponseWriter and flushes every write, adapted
// from the teacher's transport/server/http/common.FlushWriter, required for
// both the SSE and NDJSON streaming response modes.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	f, _ := w.(http.Flusher)
	return &flushWriter{w: w, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	if fw.f == nil {
		return 0, fmt.Errorf("httpmcp: streaming not supported by %T", fw.w)
	}
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}
