// Package pipeline implements the multi-phase data-refresh runs: the
// server-side runner that executes phases over a batch of items while
// streaming progress frames, the client that consumes such a stream, and
// the tax scanner that populates opportunity scans.
package pipeline

import (
	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/stream"
)

// Emitter is where a run reports its frames. A send error means the
// client has gone away; the runner stops scheduling work when it sees one.
type Emitter interface {
	Progress(p model.Progress) error
	Complete(result any) error
	Error(msg string) error
}

// streamEmitter adapts a stream.Writer to the Emitter interface.
type streamEmitter struct {
	w *stream.Writer
}

// NewStreamEmitter wraps an event-stream writer.
func NewStreamEmitter(w *stream.Writer) Emitter {
	return &streamEmitter{w: w}
}

func (e *streamEmitter) Progress(p model.Progress) error {
	return e.w.Send(stream.EventProgress, p)
}

func (e *streamEmitter) Complete(result any) error {
	return e.w.Send(stream.EventComplete, result)
}

func (e *streamEmitter) Error(msg string) error {
	return e.w.Error(msg)
}
