package store

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the session lifecycle state. Transitions run
// pending -> creating -> ready <-> executing -> stopping -> stopped, any
// state may move directly to error, and stopped/error are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCreating  Status = "creating"
	StatusReady     Status = "ready"
	StatusExecuting Status = "executing"
	StatusStopping  Status = "stopping"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// Terminal reports whether no transition leads out of s.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusError
}

// CanExecute reports whether a session in this state admits code execution.
func (s Status) CanExecute() bool {
	return s == StatusReady || s == StatusExecuting
}

// Hash field names for the session record.
const (
	FieldID              = "id"
	FieldEnvironment     = "environment"
	FieldStatus          = "status"
	FieldContainerID     = "container_id"
	FieldCreatedAt       = "created_at"
	FieldLastExecutionAt = "last_execution_at"
	FieldLastError       = "last_error"
)

type Session struct {
	ID              string    `json:"id"`
	Environment     string    `json:"environment"`
	Status          Status    `json:"status"`
	ContainerID     string    `json:"container_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastExecutionAt time.Time `json:"last_execution_at,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// ExecutionResult is the outcome of one code execution, kept under its own
// key so it can expire independently of the session record.
type ExecutionResult struct {
	Stdout        string    `json:"stdout"`
	Stderr        string    `json:"stderr"`
	ExitCode      int       `json:"exit_code"`
	ExecutionTime float64   `json:"execution_time"`
	Timestamp     time.Time `json:"timestamp"`
}

func (s *Session) fields() map[string]any {
	f := map[string]any{
		FieldID:          s.ID,
		FieldEnvironment: s.Environment,
		FieldStatus:      string(s.Status),
		FieldCreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.ContainerID != "" {
		f[FieldContainerID] = s.ContainerID
	}
	if !s.LastExecutionAt.IsZero() {
		f[FieldLastExecutionAt] = s.LastExecutionAt.UTC().Format(time.RFC3339Nano)
	}
	if s.LastError != "" {
		f[FieldLastError] = s.LastError
	}
	return f
}

func parseSession(m map[string]string) (*Session, error) {
	sess := &Session{
		ID:          m[FieldID],
		Environment: m[FieldEnvironment],
		Status:      Status(m[FieldStatus]),
		ContainerID: m[FieldContainerID],
		LastError:   m[FieldLastError],
	}
	var err error
	if sess.CreatedAt, err = parseTime(m[FieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.LastExecutionAt, err = parseTime(m[FieldLastExecutionAt]); err != nil {
		return nil, fmt.Errorf("parsing last_execution_at: %w", err)
	}
	return sess, nil
}

func (r *ExecutionResult) fields() map[string]any {
	return map[string]any{
		"stdout":         r.Stdout,
		"stderr":         r.Stderr,
		"exit_code":      strconv.Itoa(r.ExitCode),
		"execution_time": strconv.FormatFloat(r.ExecutionTime, 'f', -1, 64),
		"timestamp":      r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func parseResult(m map[string]string) (*ExecutionResult, error) {
	res := &ExecutionResult{
		Stdout: m["stdout"],
		Stderr: m["stderr"],
	}
	var err error
	if res.ExitCode, err = strconv.Atoi(m["exit_code"]); err != nil {
		return nil, fmt.Errorf("parsing exit_code: %w", err)
	}
	if res.ExecutionTime, err = strconv.ParseFloat(m["execution_time"], 64); err != nil {
		return nil, fmt.Errorf("parsing execution_time: %w", err)
	}
	if res.Timestamp, err = parseTime(m["timestamp"]); err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return res, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
