package stream

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// Decoder incrementally parses event-stream frames from a byte stream.
// Transport chunk boundaries never align with frame boundaries, so the
// trailing incomplete block after each read is retained and prefixed to
// the next one. Malformed frames are logged and dropped; they never stop
// the read loop.
type Decoder struct {
	r       io.Reader
	pending string
	queue   []Event
	buf     []byte
	eof     bool
}

// NewDecoder returns a decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 4096),
	}
}

// Next returns the next well-formed frame. It returns io.EOF once the
// underlying stream ends and all buffered frames have been consumed.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.eof {
			return Event{}, io.EOF
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.pending += string(d.buf[:n])
			d.drain(false)
		}
		if err != nil {
			d.eof = true
			// A final frame without its trailing delimiter is still
			// parsed; servers that close right after the last newline
			// should not lose their terminal frame.
			d.drain(true)
			if !errors.Is(err, io.EOF) && len(d.queue) == 0 {
				return Event{}, err
			}
		}
	}
}

// drain splits the pending buffer on blank-line delimiters and parses
// each complete block. When flush is set the remainder is parsed too.
func (d *Decoder) drain(flush bool) {
	normalized := strings.ReplaceAll(d.pending, "\r\n", "\n")
	blocks := strings.Split(normalized, "\n\n")

	last := len(blocks) - 1
	for _, block := range blocks[:last] {
		d.parseBlock(block)
	}

	if flush {
		d.parseBlock(blocks[last])
		d.pending = ""
		return
	}
	// The last split chunk may be an incomplete frame; keep it for the
	// next read.
	d.pending = blocks[last]
}

// parseBlock extracts the event and data fields from one frame block.
// Field order within a frame is not guaranteed. Blocks missing either
// field, or carrying data that is not valid JSON, are dropped.
func (d *Decoder) parseBlock(block string) {
	if strings.TrimSpace(block) == "" {
		return
	}

	var eventType, data string
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(line[len("data:"):])
		}
	}

	if eventType == "" || data == "" {
		slog.Debug("Dropping incomplete frame", "block_len", len(block))
		return
	}
	if !json.Valid([]byte(data)) {
		slog.Warn("Dropping frame with malformed JSON payload", "event", eventType)
		return
	}

	d.queue = append(d.queue, Event{Type: eventType, Data: json.RawMessage(data)})
}
