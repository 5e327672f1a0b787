// Package api exposes the workflow orchestrator over HTTP: submit, status,
// revoke, topic publishing, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dramaproject/drama/config"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/state"
	"github.com/dramaproject/drama/worker"
)

// Server is the HTTP API over a runtime.
type Server struct {
	rt        *worker.Runtime
	scheduler *worker.Scheduler
	cfg       *config.Config
	logger    *slog.Logger
}

// NewServer builds the API server.
func NewServer(rt *worker.Runtime, cfg *config.Config) *Server {
	return &Server{
		rt:        rt,
		scheduler: worker.NewScheduler(rt),
		cfg:       cfg,
		logger:    rt.Logger.With("component", "api"),
	}
}

// Handler returns the routed handler, CORS-wrapped and mounted under the
// configured root path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/v2/workflow/run", s.handleRun)
	mux.HandleFunc("GET /api/v2/workflow/status", s.handleStatus)
	mux.HandleFunc("POST /api/v2/workflow/revoke", s.handleRevoke)
	mux.HandleFunc("POST /api/v2/workflow/topic", s.handleTopic)

	mux.Handle("GET /api/openapi.json", s.requireAPIKey(http.HandlerFunc(s.handleOpenAPI)))
	mux.Handle("GET /api/docs", s.requireAPIKey(http.HandlerFunc(s.handleDocs)))

	if s.rt.Metrics != nil {
		mux.Handle("GET /metrics", s.rt.Metrics.Handler())
	}

	var handler http.Handler = mux
	if root := strings.TrimSuffix(s.cfg.RootPath, "/"); root != "" {
		handler = http.StripPrefix(root, mux)
	}
	return withCORS(handler)
}

// Run serves the API until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.APIAddr(),
		Handler: s.Handler(),
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("Deploying server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleRun executes a collection of tasks.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var workflow model.Workflow
	if err := json.NewDecoder(r.Body).Decode(&workflow); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid workflow document: %v", err))
		return
	}

	s.logger.Info("Received workflow request")

	record, err := s.scheduler.Run(r.Context(), workflow)
	if err != nil {
		var validation *model.ValidationError
		if errors.As(err, &validation) {
			writeError(w, http.StatusBadRequest, validation.Error())
			return
		}
		s.logger.Error("Could not schedule workflow", "error", err)
		writeError(w, http.StatusInternalServerError, "could not schedule workflow")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleStatus returns the workflow with its task rows populated.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id query parameter")
		return
	}

	record, err := s.scheduler.Status(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Workflow %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("Could not load workflow", "workflow", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load workflow")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleRevoke cancels the execution of pending tasks of a workflow.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id query parameter")
		return
	}

	record, err := s.rt.Store.Workflows().FindOne(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Workflow %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("Could not load workflow", "workflow", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load workflow")
		return
	}

	// Revocation is monotonic: a revoked workflow is returned as-is.
	if !record.IsRevoked {
		record, err = s.scheduler.Revoke(r.Context(), id)
		if err != nil {
			s.logger.Error("Could not revoke workflow", "workflow", id, "error", err)
			writeError(w, http.StatusInternalServerError, "could not revoke workflow")
			return
		}
	}

	writeJSON(w, http.StatusOK, record)
}

// handleTopic publishes a raw message on "<workflow>-<component>", feeding
// components that wait for interactive values.
func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id := query.Get("id")
	component := query.Get("component")
	message := query.Get("message")

	if id == "" || component == "" {
		writeError(w, http.StatusBadRequest, "missing id or component query parameter")
		return
	}

	topic := id + "-" + component
	if err := s.rt.Bus.Publish(r.Context(), topic, "", []byte(message)); err != nil {
		s.logger.Error("Could not publish to topic", "topic", topic, "error", err)
		writeError(w, http.StatusInternalServerError, "could not publish message")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// withCORS allows cross-origin calls from browser clients.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
