package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Writer emits event-stream frames to an HTTP response, flushing after
// every frame so progress reaches the client without buffering delays.
// Writer is not safe for concurrent use; the pipeline is single-flow.
type Writer struct {
	w     io.Writer
	flush func()
}

// NewWriter prepares an event-stream response on w and returns a frame
// writer for it. Headers are written immediately.
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sw := &Writer{w: w, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		sw.flush = f.Flush
	}
	sw.flush()
	return sw
}

// NewRawWriter wraps a plain io.Writer. Used in tests and anywhere the
// transport is not an http.ResponseWriter.
func NewRawWriter(w io.Writer) *Writer {
	return &Writer{w: w, flush: func() {}}
}

// Send writes one frame. A write error means the client has gone away;
// callers use it as the abort signal and must not send further frames.
func (s *Writer) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", event, err)
	}
	s.flush()
	return nil
}

// Error sends the terminal error frame.
func (s *Writer) Error(msg string) error {
	return s.Send(EventError, ErrorPayload{Error: msg})
}
