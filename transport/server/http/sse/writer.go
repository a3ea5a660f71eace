package sse

import (
	"fmt"
	"net/http"
)

// flushWriter wraps an http.ResponseWriter so every Write flushes
// immediately, adapted from the teacher's sse.Writer.
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
		return 0, fmt.Errorf("streaming not supported: %T does not support flushing", fw.w)
	}
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}
