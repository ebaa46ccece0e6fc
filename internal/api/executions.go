package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/novacloud-core/internal/automation"
)

// maxQueryParamLen caps IDs taken from the URL.
const maxQueryParamLen = 128

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid execution ID")
		return
	}

	rec, err := s.executions.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrExecutionNotFound) {
			writeNotFound(w, "execution not found")
			return
		}
		s.logger.Error("failed to get execution", "execution_id", id, "error", err)
		writeInternalError(w, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListExecutions returns the newest records of a strategy. Records
// of a deleted strategy are still listed.
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid strategy ID")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	executions, err := s.executions.ListExecutions(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to list executions", "strategy_id", id, "error", err)
		writeInternalError(w, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": executions, "count": len(executions)})
}
