// Package tasks is the asynchronous task runtime: typed payloads, the
// result envelope, the enqueue/await client, and the worker handlers that
// drive the sandbox executor. Long container operations never run on the
// request path; they run here.
package tasks

import (
	"time"

	"github.com/codexec/codexec/internal/executor"
)

// Task type names. The session: tasks carry a session id and go through
// compare-and-set status guards; the maintenance: tasks are fleet-wide.
const (
	TypeSessionStart   = "session:start"
	TypeSessionExecute = "session:execute"
	TypeSessionStop    = "session:stop"
	TypeSessionStats   = "session:stats"
	TypeEphemeralExec  = "exec:ephemeral"
	TypeReap           = "maintenance:reap"
	TypeCleanup        = "maintenance:cleanup"
)

const (
	queueDefault = "default"

	// reapInterval is how often the scheduler enqueues maintenance:reap.
	reapInterval = 300 * time.Second

	// resultRetention keeps completed tasks readable for Await.
	resultRetention = 30 * time.Minute

	maxRetry = 3
)

type StartSessionPayload struct {
	SessionID   string `json:"session_id"`
	Environment string `json:"environment"`
}

type ExecuteCodePayload struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	Filename  string `json:"filename,omitempty"`
	Stdin     string `json:"stdin,omitempty"`
}

type StopSessionPayload struct {
	SessionID string `json:"session_id"`
}

type StatsPayload struct {
	SessionID string `json:"session_id"`
}

type EphemeralExecutePayload struct {
	Environment string `json:"environment"`
	Code        string `json:"code"`
	Filename    string `json:"filename,omitempty"`
	Stdin       string `json:"stdin,omitempty"`
}

// Result is the envelope every handler reports through the task result
// writer. Workers report failure as data: Success is false only when the
// task itself could not do its job (missing session, broken sandbox
// lifecycle), never because user code exited non-zero.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"`

	ContainerID string `json:"container_id,omitempty"`

	MemoryUsage uint64  `json:"memory_usage,omitempty"`
	MemoryLimit uint64  `json:"memory_limit,omitempty"`
	CPUPercent  float64 `json:"cpu_percent,omitempty"`

	GhostsDropped     int `json:"ghosts_dropped,omitempty"`
	ContainersRemoved int `json:"containers_removed,omitempty"`
	SessionsDeleted   int `json:"sessions_deleted,omitempty"`
}

func successResult(res *executor.Result) *Result {
	return &Result{
		Success:       true,
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		ExitCode:      res.ExitCode,
		ExecutionTime: res.ExecutionTime,
	}
}

func failureResult(msg string) *Result {
	return &Result{
		Success:  false,
		Error:    msg,
		Stderr:   msg,
		ExitCode: -1,
	}
}
