// Package server provides the HTTP ingress for the exchange core.
//
// The server exposes a small API surface:
//
//   - POST /events  - Submit an outbound business event; runs the
//     delivery pipeline synchronously and returns the aggregated report
//   - GET  /health  - Liveness probe
//
// Poll runs are not exposed over HTTP; the background scheduler owns
// them (see internal/scheduler).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/edilane/go-x12/pkg/outbound"
)

// Server is the exchange core HTTP server
type Server struct {
	pipeline *outbound.Pipeline
	logger   *slog.Logger
	httpSrv  *http.Server
}

// New creates a new server around the outbound pipeline
func New(pipeline *outbound.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline: pipeline,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", s.handleEvent)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins listening on the specified address
func (s *Server) Start(addr string) error {
	s.httpSrv.Addr = addr
	s.logger.Info("starting server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "", "reading request body failed")
		return
	}

	event, err := outbound.ParseEvent(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "", err.Error())
		return
	}

	report, err := s.pipeline.Run(r.Context(), event)
	if err != nil {
		var fatal *outbound.FatalError
		if errors.As(err, &fatal) {
			s.writeError(w, http.StatusUnprocessableEntity, fatal.ExecutionID, fatal.Error())
			return
		}
		// Partial failure: the report carries both partitions.
		s.writeJSON(w, http.StatusInternalServerError, report)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, executionID, message string) {
	s.writeJSON(w, status, map[string]string{
		"executionId": executionID,
		"error":       message,
	})
}
