package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/stream"
)

func streamServer(t *testing.T, handler func(w *stream.Writer, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		// NewWriter starts the response, after which net/http rejects reads
		// from the request body; buffer it so handlers can still decode it.
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		r.Body = io.NopCloser(bytes.NewReader(body))
		handler(stream.NewWriter(w), r)
	}))
}

func waitDone(t *testing.T, call *Call) (json.RawMessage, error) {
	t.Helper()
	select {
	case <-call.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call did not finish")
	}
	return call.Wait()
}

func TestClientRun(t *testing.T) {
	server := streamServer(t, func(w *stream.Writer, r *http.Request) {
		var params SyncParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.True(t, params.ForceReanalyze)

		for i := 1; i <= 3; i++ {
			require.NoError(t, w.Send(stream.EventProgress, model.Progress{
				Stage: "collect", Current: i, Total: 3, Percent: 10 * i / 3, Phase: 1,
			}))
		}
		require.NoError(t, w.Send(stream.EventComplete, model.SyncStats{Processed: 3, Analyzed: 3}))
	})
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, InactivityTimeout: time.Second})
	var seen []model.Progress
	call, err := client.Run(context.Background(), "/api/sync", SyncParams{ForceReanalyze: true}, func(p model.Progress) {
		seen = append(seen, p)
	})
	require.NoError(t, err)

	result, err := waitDone(t, call)
	require.NoError(t, err)
	assert.False(t, call.IsActive())
	require.Len(t, seen, 3)
	assert.Equal(t, 3, seen[2].Current)

	var stats model.SyncStats
	require.NoError(t, json.Unmarshal(result, &stats))
	assert.Equal(t, 3, stats.Analyzed)
}

func TestClientServerErrorFrame(t *testing.T) {
	server := streamServer(t, func(w *stream.Writer, _ *http.Request) {
		require.NoError(t, w.Error("program source unavailable"))
	})
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, InactivityTimeout: time.Second})
	call, err := client.Run(context.Background(), "/api/sync", SyncParams{}, nil)
	require.NoError(t, err)

	_, err = waitDone(t, call)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "program source unavailable", serverErr.Message)
	assert.NotErrorIs(t, err, ErrStreamTimeout, "server errors are distinct from timeouts")
}

func TestClientInactivityTimeout(t *testing.T) {
	release := make(chan struct{})
	server := streamServer(t, func(w *stream.Writer, r *http.Request) {
		// One progress frame, then silence without closing
		require.NoError(t, w.Send(stream.EventProgress, model.Progress{Stage: "collect", Phase: 1}))
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer server.Close()
	defer close(release)

	client := NewClient(ClientConfig{BaseURL: server.URL, InactivityTimeout: 100 * time.Millisecond})
	progressed := make(chan struct{}, 1)
	call, err := client.Run(context.Background(), "/api/sync", SyncParams{}, func(model.Progress) {
		progressed <- struct{}{}
	})
	require.NoError(t, err)

	<-progressed
	_, err = waitDone(t, call)
	require.ErrorIs(t, err, ErrStreamTimeout)
}

func TestClientTimeoutResetsOnProgress(t *testing.T) {
	server := streamServer(t, func(w *stream.Writer, _ *http.Request) {
		// Each gap is below the timeout, the sum is well above it
		for i := 1; i <= 5; i++ {
			time.Sleep(60 * time.Millisecond)
			require.NoError(t, w.Send(stream.EventProgress, model.Progress{Current: i, Total: 5}))
		}
		require.NoError(t, w.Send(stream.EventComplete, model.SyncStats{}))
	})
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, InactivityTimeout: 200 * time.Millisecond})
	call, err := client.Run(context.Background(), "/api/sync", SyncParams{}, nil)
	require.NoError(t, err)

	_, err = waitDone(t, call)
	require.NoError(t, err, "watchdog resets on every progress frame")
}

func TestClientCancel(t *testing.T) {
	started := make(chan struct{})
	server := streamServer(t, func(w *stream.Writer, r *http.Request) {
		require.NoError(t, w.Send(stream.EventProgress, model.Progress{Phase: 1}))
		close(started)
		<-r.Context().Done()
	})
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, InactivityTimeout: 10 * time.Second})
	call, err := client.Run(context.Background(), "/api/sync", SyncParams{}, nil)
	require.NoError(t, err)

	<-started
	call.Cancel()
	call.Cancel() // idempotent

	_, err = waitDone(t, call)
	require.ErrorIs(t, err, context.Canceled)
	var serverErr *ServerError
	assert.False(t, errors.As(err, &serverErr), "no error frame is synthesized for cancellation")

	call.Cancel() // no-op after terminal
}

func TestClientConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.Run(context.Background(), "/api/sync", SyncParams{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already active")
}

func TestClientStreamDropsWithoutTerminalFrame(t *testing.T) {
	server := streamServer(t, func(w *stream.Writer, _ *http.Request) {
		require.NoError(t, w.Send(stream.EventProgress, model.Progress{Phase: 1}))
		// Handler returns, closing the connection with no terminal frame
	})
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, InactivityTimeout: time.Second})
	call, err := client.Run(context.Background(), "/api/sync", SyncParams{}, nil)
	require.NoError(t, err)

	_, err = waitDone(t, call)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before terminal frame")
}
