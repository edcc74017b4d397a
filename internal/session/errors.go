package session

import (
	"fmt"
	"strings"

	"github.com/codexec/codexec/internal/store"
)

// InvalidEnvironmentError reports a request naming an environment the
// catalog does not offer.
type InvalidEnvironmentError struct {
	Environment string
	Available   []string
}

func (e *InvalidEnvironmentError) Error() string {
	return fmt.Sprintf("Invalid environment: %s. Available: %s",
		e.Environment, strings.Join(e.Available, ", "))
}

// NotReadyError reports an execution attempt against a session whose
// lifecycle state does not admit one. The message tells the caller whether
// waiting will help.
type NotReadyError struct {
	Status store.Status
}

func (e *NotReadyError) Error() string {
	switch e.Status {
	case store.StatusPending:
		return "Session container is still starting. Please wait and retry."
	case store.StatusCreating:
		return "Session container is being created. Please wait and retry."
	case store.StatusStopping, store.StatusStopped:
		return "Session has been stopped."
	default:
		return fmt.Sprintf("Session is not ready for execution. Status: %s", e.Status)
	}
}

// Retryable reports whether the session may yet become executable, so HTTP
// callers can hint at a retry.
func (e *NotReadyError) Retryable() bool {
	return e.Status == store.StatusPending || e.Status == store.StatusCreating
}
