package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/stream"
)

// ErrStreamTimeout is returned when no frame arrives within the client's
// inactivity window. It is distinct from a server-reported error so
// callers can tell "server said no" from "server went silent".
var ErrStreamTimeout = errors.New("stream inactivity timeout")

// ServerError carries the message of a terminal error frame.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("run failed: %s", e.Message)
}

// Client consumes pipeline event streams from a running server. It does
// not serialize runs; callers guard concurrency with a RunHandle.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	inactivityTimeout time.Duration
}

// ClientConfig tunes a Client.
type ClientConfig struct {
	BaseURL string
	// InactivityTimeout bounds the wait for the next frame. It resets on
	// every progress frame.
	InactivityTimeout time.Duration
}

// NewClient creates a pipeline client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.InactivityTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		// No overall request timeout: runs are long-lived by design and
		// bounded by the inactivity watchdog instead.
		httpClient:        &http.Client{},
		baseURL:           cfg.BaseURL,
		inactivityTimeout: timeout,
	}
}

// Call tracks one in-flight run.
type Call struct {
	done       chan struct{}
	cancel     context.CancelFunc
	cancelOnce sync.Once
	canceled   atomic.Bool

	result json.RawMessage
	err    error
}

// Done is closed when the run reaches a terminal state.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the run finishes and returns the complete frame's
// raw payload.
func (c *Call) Wait() (json.RawMessage, error) {
	<-c.done
	return c.result, c.err
}

// Cancel aborts the underlying request. It is idempotent and a no-op
// after the run has finished. No error is synthesized for the caller;
// a caller that cancels already knows the run is abandoned.
func (c *Call) Cancel() {
	c.cancelOnce.Do(func() {
		c.canceled.Store(true)
		c.cancel()
	})
}

// IsActive reports whether the run has not yet reached a terminal state.
func (c *Call) IsActive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Call) finish(result json.RawMessage, err error) {
	c.result = result
	c.err = err
	close(c.done)
}

// Run starts a pipeline run by POSTing params to path and consuming the
// response stream. onProgress is invoked for every progress frame; it
// must not block for long, since the watchdog counts decode-to-decode
// time. The returned Call resolves on the terminal frame.
func (c *Client) Run(ctx context.Context, path string, params any, onProgress func(model.Progress)) (*Call, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run parameters: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(runCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	if resp.StatusCode == http.StatusConflict {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("a run is already active")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("run request failed (status %d): %s", resp.StatusCode, msg)
	}

	call := &Call{done: make(chan struct{}), cancel: cancel}
	go c.consume(call, resp.Body, onProgress)
	return call, nil
}

// frameResult carries one decoded frame from the reader goroutine.
type frameResult struct {
	event stream.Event
	err   error
}

// consume reads frames until a terminal one arrives, resetting the
// inactivity watchdog on every frame. On timeout it cancels the request
// itself and resolves the call with ErrStreamTimeout.
func (c *Client) consume(call *Call, body io.ReadCloser, onProgress func(model.Progress)) {
	defer func() { _ = body.Close() }()

	frames := make(chan frameResult)
	go func() {
		dec := stream.NewDecoder(body)
		for {
			ev, err := dec.Next()
			frames <- frameResult{event: ev, err: err}
			if err != nil {
				close(frames)
				return
			}
		}
	}()

	watchdog := time.NewTimer(c.inactivityTimeout)
	defer watchdog.Stop()

	for {
		select {
		case <-watchdog.C:
			call.cancel()
			// Unblock the reader goroutine before resolving
			go func() {
				for range frames {
				}
			}()
			call.finish(nil, ErrStreamTimeout)
			return

		case fr := <-frames:
			if fr.err != nil {
				if call.canceled.Load() {
					// Caller-initiated cancellation resolves without a
					// synthesized error payload.
					call.finish(nil, context.Canceled)
					return
				}
				// Stream ended without a terminal frame: the run's true
				// final state is unknown, treat it as failed.
				call.finish(nil, fmt.Errorf("stream closed before terminal frame: %w", fr.err))
				return
			}

			if !watchdog.Stop() {
				<-watchdog.C
			}
			watchdog.Reset(c.inactivityTimeout)

			switch fr.event.Type {
			case stream.EventProgress:
				var p model.Progress
				if err := json.Unmarshal(fr.event.Data, &p); err == nil && onProgress != nil {
					onProgress(p)
				}
			case stream.EventComplete:
				call.finish(fr.event.Data, nil)
				go func() {
					for range frames {
					}
				}()
				return
			case stream.EventError:
				var payload stream.ErrorPayload
				_ = json.Unmarshal(fr.event.Data, &payload)
				call.finish(nil, &ServerError{Message: payload.Error})
				go func() {
					for range frames {
					}
				}()
				return
			}
		}
	}
}
