// Package server exposes the pipeline, scanner, and worksheet engine over
// HTTP. Sync and analyze-all respond with event streams; everything else
// is plain JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yeonjae-dev/bizradar/internal/common"
	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/pipeline"
	"github.com/yeonjae-dev/bizradar/internal/service"
	"github.com/yeonjae-dev/bizradar/internal/stream"
	"github.com/yeonjae-dev/bizradar/internal/worksheet"
)

// Server wires the HTTP surface. One RunHandle serializes sync and
// analyze-all runs; a second concurrent run gets 409.
type Server struct {
	runner  *pipeline.Runner
	scanner *pipeline.Scanner
	engine  *worksheet.Engine
	scans   service.ScanStore
	handle  *pipeline.RunHandle
}

// New creates a server.
func New(runner *pipeline.Runner, scanner *pipeline.Scanner, engine *worksheet.Engine, scans service.ScanStore) *Server {
	return &Server{
		runner:  runner,
		scanner: scanner,
		engine:  engine,
		scans:   scans,
		handle:  pipeline.NewRunHandle(),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/analyze-all", s.handleAnalyzeAll)
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("GET /api/scans/latest", s.handleLatestScan)
	mux.HandleFunc("GET /api/scans", s.handleListScans)
	mux.HandleFunc("GET /api/scans/{id}", s.handleGetScan)
	mux.HandleFunc("POST /api/scans/{id}/opportunities/{oid}/worksheet", s.handleGenerateWorksheet)
	mux.HandleFunc("PUT /api/scans/{id}/opportunities/{oid}/worksheet", s.handleApplyOverrides)
	mux.HandleFunc("PUT /api/scans/{id}/opportunities/{oid}/status", s.handleUpdateStatus)
	return mux
}

// ListenAndServe runs the server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleSync runs the five-phase refresh, streaming frames until the run
// terminates.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var params pipeline.SyncParams
	if !decodeBody(w, r, &params) {
		return
	}
	s.streamRun(w, r, func(ctx context.Context, emit pipeline.Emitter) error {
		_, err := s.runner.Sync(ctx, params, emit)
		return err
	})
}

func (s *Server) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	var params pipeline.AnalyzeParams
	if !decodeBody(w, r, &params) {
		return
	}
	s.streamRun(w, r, func(ctx context.Context, emit pipeline.Emitter) error {
		_, err := s.runner.AnalyzeAll(ctx, params, emit)
		return err
	})
}

// streamRun claims the run slot and executes one run over an event
// stream. The stream writer is hooked to the request context so a client
// disconnect surfaces as a write failure inside the runner.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, run func(context.Context, pipeline.Emitter) error) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	release, err := s.handle.Acquire(cancel)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	defer release()

	emit := pipeline.NewStreamEmitter(stream.NewWriter(w))
	if err := run(ctx, emit); err != nil {
		// Terminal frames were already emitted; abort means the client is
		// gone and there is nobody left to tell.
		slog.Warn("Run finished with error", "error", err)
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleLatestScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.scans.LatestScan(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.scans.ListScans(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

// handleGetScan returns one scan. Query parameters filter and sort the
// opportunity list: status, source, difficulty, minConfidence, sort.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.scans.GetScan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	q := r.URL.Query()
	filter := worksheet.Filter{
		Status:     model.OpportunityStatus(q.Get("status")),
		DataSource: model.DataSource(q.Get("source")),
		Difficulty: model.Difficulty(q.Get("difficulty")),
	}
	if v := q.Get("minConfidence"); v != "" {
		minConf, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("minConfidence must be an integer"))
			return
		}
		filter.MinConfidence = minConf
	}
	order := worksheet.SortByRefund
	if q.Get("sort") == "confidence" {
		order = worksheet.SortByConfidence
	}

	scan.Opportunities = worksheet.View(scan, filter, order)
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleGenerateWorksheet(w http.ResponseWriter, r *http.Request) {
	opp, err := s.engine.Generate(r.Context(), r.PathValue("id"), r.PathValue("oid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

func (s *Server) handleApplyOverrides(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Overrides map[string]int64 `json:"overrides"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	opp, err := s.engine.ApplyOverrides(r.Context(), r.PathValue("id"), r.PathValue("oid"), body.Overrides)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.OpportunityStatus `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	opp, err := s.engine.UpdateStatus(r.Context(), r.PathValue("id"), r.PathValue("oid"), body.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

// decodeBody parses a JSON request body. An empty body decodes to the
// zero parameters.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, worksheet.ErrNoWorksheet),
		errors.Is(err, worksheet.ErrWorksheetExists),
		errors.Is(err, worksheet.ErrUnknownLineItem),
		errors.Is(err, worksheet.ErrNotEditable),
		errors.Is(err, worksheet.ErrNotIdentified):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, common.ErrRunActive):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
