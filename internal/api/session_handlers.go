package api

import (
	"net/http"
	"time"

	"github.com/codexec/codexec/internal/store"
)

type createSessionRequest struct {
	Environment string `json:"environment"`
}

type createSessionResponse struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Message     string `json:"message"`
}

type sessionInfoResponse struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	Environment   string `json:"environment"`
	ContainerID   string `json:"container_id,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	LastExecution string `json:"last_execution,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

type stopSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type sessionStatsResponse struct {
	SessionID   string  `json:"session_id"`
	MemoryUsage uint64  `json:"memory_usage"`
	MemoryLimit uint64  `json:"memory_limit"`
	CPUPercent  float64 `json:"cpu_percent"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error(), nil)
		return
	}

	sess, err := s.service.Create(r.Context(), req.Environment)
	if err != nil {
		s.logger.Error("create session", "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:   sess.ID,
		Status:      string(sess.Status),
		Environment: sess.Environment,
		Message:     "Session created. Container is starting...",
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	sess, err := s.service.Get(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionInfo(sess))
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	if err := s.service.Stop(r.Context(), id); err != nil {
		s.logger.Error("stop session", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stopSessionResponse{
		SessionID: id,
		Status:    string(store.StatusStopping),
		Message:   "Session is being stopped...",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	res, err := s.service.Stats(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if !res.Success {
		writeTaskFailure(w, res)
		return
	}

	writeJSON(w, http.StatusOK, sessionStatsResponse{
		SessionID:   id,
		MemoryUsage: res.MemoryUsage,
		MemoryLimit: res.MemoryLimit,
		CPUPercent:  res.CPUPercent,
	})
}

func sessionInfo(sess *store.Session) sessionInfoResponse {
	info := sessionInfoResponse{
		SessionID:   sess.ID,
		Status:      string(sess.Status),
		Environment: sess.Environment,
		ContainerID: sess.ContainerID,
		LastError:   sess.LastError,
	}
	if !sess.CreatedAt.IsZero() {
		info.CreatedAt = sess.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !sess.LastExecutionAt.IsZero() {
		info.LastExecution = sess.LastExecutionAt.UTC().Format(time.RFC3339)
	}
	return info
}
