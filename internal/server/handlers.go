package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fwrelease/internal/security"
)

const (
	RecentBuildsLimit = 10  // builds returned per output by the status endpoint
	DefaultRunsLimit  = 10  // runs returned when no limit is given
	MaxRunsLimit      = 100 // upper bound for ?limit=
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":       "ok",
		"outputs":      s.Outputs,
		"output_count": len(s.Outputs),
		"history":      s.History != nil,
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleStatus returns the latest and recent builds of one output
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	outputName := chi.URLParam(r, "outputName")

	if err := security.ValidateOutputName(outputName); err != nil {
		s.Logger.Warn("Invalid output name in status request", "output", outputName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid output name: %v", err)})
		return
	}

	if !slices.Contains(s.Outputs, outputName) {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown output"})
		return
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available"})
		return
	}

	latest, err := s.History.GetLatestBuild(r.Context(), outputName)
	if err != nil {
		s.Logger.Error("Failed to get latest build", "error", err, "output", outputName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch build status"})
		return
	}

	recent, err := s.History.GetBuildHistory(r.Context(), outputName, RecentBuildsLimit)
	if err != nil {
		s.Logger.Error("Failed to get build history", "error", err, "output", outputName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch build status"})
		return
	}

	response := map[string]interface{}{
		"output":         outputName,
		"latest_build":   latest,
		"recent_history": recent,
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleRuns lists recent runs, newest first
func (s *Server) HandleRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxRunsLimit {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("limit must be between 1 and %d", MaxRunsLimit)})
			return
		}
		limit = n
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available"})
		return
	}

	runs, err := s.History.GetRecentRuns(r.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to get recent runs", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch runs"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// HandleRun returns one run with its builds
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := uuid.Parse(runID); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid run ID"})
		return
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available"})
		return
	}

	run, err := s.History.GetRun(r.Context(), runID)
	if err != nil {
		s.Logger.Error("Failed to get run", "error", err, "run_id", runID)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch run"})
		return
	}
	if run == nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown run"})
		return
	}

	builds, err := s.History.GetRunBuilds(r.Context(), runID)
	if err != nil {
		s.Logger.Error("Failed to get run builds", "error", err, "run_id", runID)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch run"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run":    run,
		"builds": builds,
	})
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}
