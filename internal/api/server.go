// Package api serves the dashboard HTTP surface: the container snapshot,
// lifecycle actions, health, metrics and the static frontend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/warfair1337/wn-dockctl/internal/metrics"
	"github.com/warfair1337/wn-dockctl/internal/model"
)

// SnapshotSource builds one snapshot per call.
type SnapshotSource interface {
	Collect(ctx context.Context) (model.Snapshot, error)
}

// ActionApplier forwards a lifecycle action to the container runtime.
type ActionApplier interface {
	Apply(ctx context.Context, containerID, action string) error
}

type HealthReporter interface {
	Snapshot() map[string]any
}

type Options struct {
	StaticDir      string
	RequestTimeout time.Duration
	Health         HealthReporter
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Server implements http.Handler. It is safe to use concurrently.
type Server struct {
	snapshots SnapshotSource
	actions   ActionApplier
	health    HealthReporter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration
	router    *mux.Router
}

func NewServer(snapshots SnapshotSource, actions ActionApplier, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Server{
		snapshots: snapshots,
		actions:   actions,
		health:    opts.Health,
		metrics:   opts.Metrics,
		logger:    logger,
		timeout:   timeout,
		router:    mux.NewRouter(),
	}
	s.routes(opts.StaticDir)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(staticDir string) {
	s.router.HandleFunc("/containers", s.handleContainers).Methods(http.MethodGet)
	s.router.HandleFunc("/containers/{id}/{action}", s.handleAction).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	if staticDir == "" {
		return
	}
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		s.logger.Info("static directory not found, frontend disabled", "dir", staticDir)
		return
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
}

// handleContainers implements:
//
//	GET /containers
func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	snap, err := s.snapshots.Collect(ctx)
	if err != nil {
		s.logger.Error("snapshot request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newContainersResponse(snap))
}

// handleAction implements:
//
//	POST /containers/{id}/{action}
//
// where action is start, stop or restart.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, action := vars["id"], vars["action"]

	if _, err := model.ParseAction(action); err != nil {
		s.metrics.ActionApplied("invalid", err)
		writeInvalidAction(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	err := s.actions.Apply(ctx, id, action)
	s.metrics.ActionApplied(action, err)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, model.ErrInvalidAction):
		writeInvalidAction(w)
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.health != nil {
		for k, v := range s.health.Snapshot() {
			body[k] = v
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func writeInvalidAction(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte("Invalid action"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
