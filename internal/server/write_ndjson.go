package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// NDJSONWriter streams newline-delimited JSON objects to the underlying writer.
type NDJSONWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	buf     []byte
	written int
}

// NewNDJSONWriter wraps w and flushes after every object when w supports it.
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	var flusher http.Flusher
	if f, ok := w.(http.Flusher); ok {
		flusher = f
	}
	return &NDJSONWriter{writer: w, flusher: flusher}
}

// WriteObject marshals v and writes it as one line.
func (w *NDJSONWriter) WriteObject(v any) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.buf = append(append(w.buf[:0], data...), '\n')
	if _, err := w.writer.Write(w.buf); err != nil {
		return err
	}
	w.written++
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Written is the number of objects sent so far.
func (w *NDJSONWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}
