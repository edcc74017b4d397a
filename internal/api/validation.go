package api

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidateSessionID requires a well-formed UUID, matching what Create
// issues. Anything else cannot name a session and is rejected before the
// store is consulted.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

func validateExecuteRequest(req executeRequest) error {
	if req.Code == "" {
		return fmt.Errorf("code is required")
	}
	return nil
}

func validateEphemeralRequest(req ephemeralExecuteRequest) error {
	if req.Code == "" {
		return fmt.Errorf("code is required")
	}
	return nil
}
