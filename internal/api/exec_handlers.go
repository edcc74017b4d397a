package api

import (
	"net/http"

	"github.com/codexec/codexec/internal/tasks"
)

type executeRequest struct {
	Code     string `json:"code"`
	Filename string `json:"filename"`
	Stdin    string `json:"stdin"`
}

type ephemeralExecuteRequest struct {
	Environment string `json:"environment"`
	Code        string `json:"code"`
	Filename    string `json:"filename"`
	Stdin       string `json:"stdin"`
}

type executeResponse struct {
	SessionID     string  `json:"session_id,omitempty"`
	Environment   string  `json:"environment,omitempty"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"`
	Status        string  `json:"status"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	var req executeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error(), nil)
		return
	}
	if err := validateExecuteRequest(req); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	res, err := s.service.Execute(r.Context(), id, req.Code, req.Filename, req.Stdin)
	if err != nil {
		s.logger.Error("execute", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}
	if !res.Success {
		writeTaskFailure(w, res)
		return
	}

	out := executionEnvelope(res)
	out.SessionID = id
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEphemeralExecute(w http.ResponseWriter, r *http.Request) {
	var req ephemeralExecuteRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error(), nil)
		return
	}
	if err := validateEphemeralRequest(req); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	res, err := s.service.EphemeralExecute(r.Context(), req.Environment, req.Code, req.Filename, req.Stdin)
	if err != nil {
		s.logger.Error("ephemeral execute", "environment", req.Environment, "error", err)
		writeAPIError(w, err)
		return
	}
	if !res.Success {
		writeTaskFailure(w, res)
		return
	}

	out := executionEnvelope(res)
	out.Environment = req.Environment
	writeJSON(w, http.StatusOK, out)
}

// executionEnvelope maps a task result onto the HTTP execution response.
// status reflects only the user code's exit, never the service's health.
func executionEnvelope(res *tasks.Result) executeResponse {
	status := "completed"
	if res.ExitCode != 0 {
		status = "error"
	}
	return executeResponse{
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		ExitCode:      res.ExitCode,
		ExecutionTime: res.ExecutionTime,
		Status:        status,
	}
}
