package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/codexec/codexec/internal/config"
	"github.com/codexec/codexec/internal/executor"
	"github.com/codexec/codexec/internal/metrics"
	"github.com/codexec/codexec/internal/reaper"
	"github.com/codexec/codexec/internal/store"
)

// SandboxExecutor is the slice of the executor the handlers use.
type SandboxExecutor interface {
	CreateContainer(ctx context.Context, sessionID, environment string) (string, error)
	ExecuteCode(ctx context.Context, containerID, environment, code, filename, stdin string) *executor.Result
	StopContainer(ctx context.Context, containerID string) error
	Stats(ctx context.Context, containerID string) (*executor.ContainerStats, error)
	RunOnce(ctx context.Context, environment, code, filename, stdin string) (*executor.Result, error)
}

// Maintenance is the reaper surface driven by the maintenance tasks.
type Maintenance interface {
	ReapOnce(ctx context.Context) reaper.Summary
	ForceCleanup(ctx context.Context) reaper.Summary
}

// Handlers implements the worker side of every task type. Failures a retry
// cannot fix are reported through the result envelope and return nil; only
// transient store errors propagate so asynq redelivers.
type Handlers struct {
	store    *store.Store
	executor SandboxExecutor
	maint    Maintenance
	cfg      *config.Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewHandlers(st *store.Store, ex SandboxExecutor, maint Maintenance, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:    st,
		executor: ex,
		maint:    maint,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSessionStart, h.HandleSessionStart)
	mux.HandleFunc(TypeSessionExecute, h.HandleSessionExecute)
	mux.HandleFunc(TypeSessionStop, h.HandleSessionStop)
	mux.HandleFunc(TypeSessionStats, h.HandleSessionStats)
	mux.HandleFunc(TypeEphemeralExec, h.HandleEphemeralExecute)
	mux.HandleFunc(TypeReap, h.HandleReap)
	mux.HandleFunc(TypeCleanup, h.HandleCleanup)
}

func (h *Handlers) HandleSessionStart(ctx context.Context, t *asynq.Task) error {
	var p StartSessionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	res, err := h.startSession(ctx, &p)
	if err != nil {
		return err
	}
	return writeResult(t, res)
}

// startSession provisions the sandbox for a pending session. Redeliveries
// are harmless: a session that already reached ready just re-asserts
// success, and one that moved to a terminal state is left alone.
func (h *Handlers) startSession(ctx context.Context, p *StartSessionPayload) (*Result, error) {
	sess, err := h.store.Get(ctx, p.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return failureResult("Session not found"), nil
	}
	if err != nil {
		return nil, err
	}

	if sess.Status == store.StatusReady && sess.ContainerID != "" {
		return &Result{Success: true, ContainerID: sess.ContainerID}, nil
	}

	ok, err := h.store.CompareAndSetStatus(ctx, p.SessionID, store.StatusCreating,
		store.StatusPending, store.StatusCreating)
	if errors.Is(err, store.ErrNotFound) {
		return failureResult("Session not found"), nil
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return failureResult(fmt.Sprintf("Session is not startable. Status: %s", sess.Status)), nil
	}

	containerID, err := h.executor.CreateContainer(ctx, p.SessionID, p.Environment)
	if err != nil {
		h.logger.Error("container create failed", "session_id", p.SessionID, "error", err)
		h.markError(ctx, p.SessionID, err.Error())
		return failureResult(err.Error()), nil
	}

	err = h.store.Update(ctx, p.SessionID, map[string]string{
		store.FieldContainerID: containerID,
	})
	if err == nil {
		_, err = h.store.CompareAndSetStatus(ctx, p.SessionID, store.StatusReady, store.StatusCreating)
	}
	if err != nil {
		// Session expired while the container came up; don't leak it.
		if stopErr := h.executor.StopContainer(context.WithoutCancel(ctx), containerID); stopErr != nil {
			h.logger.Warn("orphan teardown failed", "container_id", containerID, "error", stopErr)
		}
		if errors.Is(err, store.ErrNotFound) {
			return failureResult("Session expired during container creation"), nil
		}
		return nil, err
	}

	h.logger.Info("session ready", "session_id", p.SessionID, "environment", p.Environment)
	return &Result{Success: true, ContainerID: containerID}, nil
}

func (h *Handlers) HandleSessionExecute(ctx context.Context, t *asynq.Task) error {
	var p ExecuteCodePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	res, err := h.executeCode(ctx, &p)
	if err != nil {
		return err
	}
	return writeResult(t, res)
}

func (h *Handlers) executeCode(ctx context.Context, p *ExecuteCodePayload) (*Result, error) {
	sess, err := h.store.Get(ctx, p.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return failureResult("Session not found"), nil
	}
	if err != nil {
		return nil, err
	}
	if sess.ContainerID == "" || !sess.Status.CanExecute() {
		return failureResult(fmt.Sprintf("Session is not ready for execution. Status: %s", sess.Status)), nil
	}

	ok, err := h.store.CompareAndSetStatus(ctx, p.SessionID, store.StatusExecuting,
		store.StatusReady, store.StatusExecuting)
	if errors.Is(err, store.ErrNotFound) {
		return failureResult("Session not found"), nil
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return failureResult(fmt.Sprintf("Session is not ready for execution. Status: %s", sess.Status)), nil
	}

	// The in-sandbox timeout guard is the real limit; this deadline is the
	// backstop for a wedged exec stream.
	execCtx, cancel := context.WithTimeout(ctx, h.cfg.ExecTimeout()+10*time.Second)
	defer cancel()

	res := h.executor.ExecuteCode(execCtx, sess.ContainerID, sess.Environment, p.Code, p.Filename, p.Stdin)

	if err := h.store.SaveResult(ctx, p.SessionID, &store.ExecutionResult{
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		ExitCode:      res.ExitCode,
		ExecutionTime: res.ExecutionTime,
		Timestamp:     res.Timestamp,
	}); err != nil {
		h.logger.Warn("save result failed", "session_id", p.SessionID, "error", err)
	}

	if res.Stderr == executor.StderrContainerGone {
		h.markError(ctx, p.SessionID, executor.StderrContainerGone)
		if err := h.store.ClearContainer(ctx, p.SessionID); err != nil {
			h.logger.Warn("clear container failed", "session_id", p.SessionID, "error", err)
		}
		return failureResult(executor.StderrContainerGone), nil
	}

	if _, err := h.store.CompareAndSetStatus(ctx, p.SessionID, store.StatusReady, store.StatusExecuting); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("status restore failed", "session_id", p.SessionID, "error", err)
	}

	h.metrics.ObserveExecution(res.ExitCode, res.ExecutionTime)
	return successResult(res), nil
}

func (h *Handlers) HandleSessionStop(ctx context.Context, t *asynq.Task) error {
	var p StopSessionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	res, err := h.stopSession(ctx, &p)
	if err != nil {
		return err
	}
	return writeResult(t, res)
}

func (h *Handlers) stopSession(ctx context.Context, p *StopSessionPayload) (*Result, error) {
	sess, err := h.store.Get(ctx, p.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return failureResult("Session not found"), nil
	}
	if err != nil {
		return nil, err
	}
	if sess.Status == store.StatusStopped {
		return &Result{Success: true}, nil
	}

	ok, err := h.store.CompareAndSetStatus(ctx, p.SessionID, store.StatusStopping,
		store.StatusPending, store.StatusCreating, store.StatusReady,
		store.StatusExecuting, store.StatusStopping, store.StatusError)
	if errors.Is(err, store.ErrNotFound) {
		return failureResult("Session not found"), nil
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		// Only stopped is excluded above; a replay raced the final CAS.
		return &Result{Success: true}, nil
	}

	if sess.ContainerID != "" {
		if err := h.executor.StopContainer(ctx, sess.ContainerID); err != nil {
			h.logger.Warn("container stop failed", "session_id", p.SessionID, "error", err)
			return nil, err
		}
	}

	if _, err := h.store.CompareAndSetStatus(ctx, p.SessionID, store.StatusStopped, store.StatusStopping); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := h.store.ClearContainer(ctx, p.SessionID); err != nil {
		h.logger.Warn("clear container failed", "session_id", p.SessionID, "error", err)
	}

	h.logger.Info("session stopped", "session_id", p.SessionID)
	return &Result{Success: true}, nil
}

func (h *Handlers) HandleSessionStats(ctx context.Context, t *asynq.Task) error {
	var p StatsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	res, err := h.sessionStats(ctx, &p)
	if err != nil {
		return err
	}
	return writeResult(t, res)
}

func (h *Handlers) sessionStats(ctx context.Context, p *StatsPayload) (*Result, error) {
	sess, err := h.store.Get(ctx, p.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return failureResult("Session not found"), nil
	}
	if err != nil {
		return nil, err
	}
	if sess.ContainerID == "" {
		return failureResult("Session has no running container"), nil
	}

	stats, err := h.executor.Stats(ctx, sess.ContainerID)
	if err != nil {
		return failureResult("Stats error: " + err.Error()), nil
	}
	return &Result{
		Success:     true,
		ContainerID: sess.ContainerID,
		MemoryUsage: stats.MemoryUsage,
		MemoryLimit: stats.MemoryLimit,
		CPUPercent:  stats.CPUPercent,
	}, nil
}

func (h *Handlers) HandleEphemeralExecute(ctx context.Context, t *asynq.Task) error {
	var p EphemeralExecutePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	res, err := h.ephemeralExecute(ctx, &p)
	if err != nil {
		return err
	}
	return writeResult(t, res)
}

func (h *Handlers) ephemeralExecute(ctx context.Context, p *EphemeralExecutePayload) (*Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, h.cfg.ExecTimeout()+10*time.Second)
	defer cancel()

	res, err := h.executor.RunOnce(execCtx, p.Environment, p.Code, p.Filename, p.Stdin)
	if err != nil {
		h.logger.Error("ephemeral execution failed", "environment", p.Environment, "error", err)
		return failureResult(err.Error()), nil
	}

	h.metrics.ObserveExecution(res.ExitCode, res.ExecutionTime)
	return successResult(res), nil
}

func (h *Handlers) HandleReap(ctx context.Context, t *asynq.Task) error {
	sum := h.maint.ReapOnce(ctx)
	return writeResult(t, &Result{
		Success:           true,
		GhostsDropped:     sum.GhostsDropped,
		ContainersRemoved: sum.ContainersRemoved,
	})
}

func (h *Handlers) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	sum := h.maint.ForceCleanup(ctx)
	return writeResult(t, &Result{
		Success:           true,
		GhostsDropped:     sum.GhostsDropped,
		ContainersRemoved: sum.ContainersRemoved,
		SessionsDeleted:   sum.SessionsDeleted,
	})
}

// markError moves the session to the error state, recording the cause.
func (h *Handlers) markError(ctx context.Context, sessionID, cause string) {
	err := h.store.Update(ctx, sessionID, map[string]string{
		store.FieldStatus:    string(store.StatusError),
		store.FieldLastError: cause,
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("mark error failed", "session_id", sessionID, "error", err)
	}
}

// writeResult persists the envelope through the task's result writer. The
// writer is nil for tasks not running under an asynq server (unit tests call
// handlers directly), in which case the envelope is simply dropped.
func writeResult(t *asynq.Task, res *Result) error {
	w := t.ResultWriter()
	if w == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode task result: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write task result: %w", err)
	}
	return nil
}
