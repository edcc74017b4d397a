package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codexec/codexec/internal/session"
	"github.com/codexec/codexec/internal/store"
	"github.com/codexec/codexec/internal/tasks"
)

// Error codes returned in API responses
const (
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeInvalidEnvironment = "INVALID_ENVIRONMENT"
	ErrCodeSessionNotReady    = "SESSION_NOT_READY"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeTaskTimeout        = "TASK_TIMEOUT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// APIError is the structured error body for every non-2xx response.
type APIError struct {
	Code    string                 `json:"error_code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeAPIError maps known error types onto codes and HTTP statuses.
func writeAPIError(w http.ResponseWriter, err error) {
	var (
		invalidEnv *session.InvalidEnvironmentError
		notReady   *session.NotReadyError
	)

	apiErr := APIError{Code: ErrCodeInternalError, Message: err.Error()}
	statusCode := http.StatusInternalServerError

	switch {
	case errors.Is(err, store.ErrNotFound):
		apiErr.Code = ErrCodeSessionNotFound
		statusCode = http.StatusNotFound

	case errors.As(err, &invalidEnv):
		apiErr.Code = ErrCodeInvalidEnvironment
		apiErr.Details = map[string]interface{}{"available": invalidEnv.Available}
		statusCode = http.StatusBadRequest

	case errors.As(err, &notReady):
		apiErr.Code = ErrCodeSessionNotReady
		apiErr.Details = map[string]interface{}{"status": string(notReady.Status)}
		statusCode = http.StatusBadRequest

	case errors.Is(err, tasks.ErrAwaitTimeout):
		apiErr.Code = ErrCodeTaskTimeout
		statusCode = http.StatusGatewayTimeout
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErr)
}

// writeValidationError writes a 400 Bad Request with validation details
func writeValidationError(w http.ResponseWriter, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(APIError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Details: details,
	})
}

// writeTaskFailure reports a failure envelope from a worker. The task ran
// but could not do its job; to the client that is an internal error.
func writeTaskFailure(w http.ResponseWriter, res *tasks.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(APIError{
		Code:    ErrCodeInternalError,
		Message: res.Error,
	})
}
