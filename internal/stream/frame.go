// Package stream implements the event-stream wire protocol used to push
// ordered progress frames from the server to a client over a single
// long-lived HTTP response.
//
// A frame is a UTF-8 text block of the form
//
//	event: <type>\n
//	data: <JSON>\n
//	\n
//
// Exactly one terminal frame (complete or error) closes the logical
// stream. There is no resumption, acknowledgement, or backpressure: if
// the connection drops mid-run the client must treat the run as failed.
package stream

import "encoding/json"

// Frame types.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one decoded frame.
type Event struct {
	Type string
	Data json.RawMessage
}

// IsTerminal reports whether this frame ends the logical stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// ErrorPayload is the data carried by an error frame.
type ErrorPayload struct {
	Error string `json:"error"`
}
