// Package server exposes recorded runs and their artifacts over a
// read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/calcstack/calcbook/internal/artifact"
	"github.com/calcstack/calcbook/internal/state"
)

const defaultListLimit = 50

// Server serves the run API.
type Server struct {
	store       state.Store
	artifactDir string
	logger      *slog.Logger
	http        *http.Server
}

// New creates a server reading runs from store and artifact files from
// artifactDir. A nil logger means discard.
func New(store state.Store, artifactDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: store, artifactDir: artifactDir, logger: logger}
}

// Routes builds the router. Split out from Start so tests can drive
// the handlers with httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/{id}", s.handleGetRun)
	r.Get("/api/runs/{id}/artifacts/{kind}", s.handleGetArtifact)

	return r
}

// Start listens on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:        addr,
		Handler:     s.Routes(),
		ReadTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.logger.Info("api server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type runResponse struct {
	ID          string            `json:"id"`
	Workbook    string            `json:"workbook"`
	Status      string            `json:"status"`
	Params      json.RawMessage   `json:"params"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
}

func toRunResponse(run *state.Run) runResponse {
	params := run.Params
	if params == "" {
		params = "{}"
	}
	return runResponse{
		ID:          run.ID,
		Workbook:    run.Workbook,
		Status:      string(run.Status),
		Params:      json.RawMessage(params),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]runResponse, len(runs))
	for i, run := range runs {
		out[i] = toRunResponse(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("failed to get run", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	resp := toRunResponse(run)
	if recs, err := s.store.GetArtifacts(id); err == nil && len(recs) > 0 {
		resp.Artifacts = make(map[string]string, len(recs))
		for _, rec := range recs {
			resp.Artifacts[rec.Kind] = rec.Hash
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	kind := chi.URLParam(r, "kind")

	valid := false
	for _, k := range artifact.Kinds {
		if k == kind {
			valid = true
			break
		}
	}
	if !valid {
		writeError(w, http.StatusBadRequest, "unknown artifact kind")
		return
	}

	data, err := artifact.ReadKind(s.artifactDir, id, kind)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
