// Package session coordinates the session lifecycle from the API side:
// validation and state gates run here synchronously, while every container
// operation is submitted to the task runtime and awaited.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codexec/codexec/internal/config"
	"github.com/codexec/codexec/internal/metrics"
	"github.com/codexec/codexec/internal/registry"
	"github.com/codexec/codexec/internal/store"
	"github.com/codexec/codexec/internal/tasks"
)

// statsAwait caps how long a stats request waits on the worker; a one-shot
// stats sample is quick or not coming.
const statsAwait = 30 * time.Second

// TaskClient is the slice of the task runtime client the coordinator uses.
type TaskClient interface {
	SubmitSessionStart(ctx context.Context, sessionID, environment string) (*tasks.Handle, error)
	SubmitSessionExecute(ctx context.Context, sessionID, code, filename, stdin string) (*tasks.Handle, error)
	SubmitSessionStop(ctx context.Context, sessionID string) (*tasks.Handle, error)
	SubmitSessionStats(ctx context.Context, sessionID string) (*tasks.Handle, error)
	SubmitEphemeralExecute(ctx context.Context, environment, code, filename, stdin string) (*tasks.Handle, error)
	Await(ctx context.Context, h *tasks.Handle, timeout time.Duration) (*tasks.Result, error)
}

// Coordinator owns the request-path session logic. It never touches Docker.
type Coordinator struct {
	cfg     *config.Config
	store   *store.Store
	reg     *registry.Registry
	tasks   TaskClient
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCoordinator(cfg *config.Config, st *store.Store, reg *registry.Registry, tc TaskClient, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		store:   st,
		reg:     reg,
		tasks:   tc,
		metrics: m,
		logger:  logger,
	}
}

// validateEnvironment accepts only enabled catalog entries.
func (c *Coordinator) validateEnvironment(name string) error {
	env, err := c.reg.Get(name)
	if err != nil || !env.Enabled {
		return &InvalidEnvironmentError{Environment: name, Available: c.reg.List()}
	}
	return nil
}

// Create registers a new session and kicks off container provisioning in
// the background. The caller gets the pending record immediately and polls
// status until ready.
func (c *Coordinator) Create(ctx context.Context, environment string) (*store.Session, error) {
	if environment == "" {
		environment = c.reg.Defaults().DefaultEnvironment
	}
	if err := c.validateEnvironment(environment); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	sess, err := c.store.Create(ctx, id, environment)
	if err != nil {
		return nil, err
	}

	if _, err := c.tasks.SubmitSessionStart(ctx, id, environment); err != nil {
		// No worker will ever pick this session up; don't leave it pending.
		if delErr := c.store.Delete(ctx, id); delErr != nil {
			c.logger.Warn("rollback of unstartable session failed", "session_id", id, "error", delErr)
		}
		return nil, err
	}

	c.metrics.SessionCreated()
	c.logger.Info("session created", "session_id", id, "environment", environment)
	return sess, nil
}

// Get reads the session record.
func (c *Coordinator) Get(ctx context.Context, id string) (*store.Session, error) {
	return c.store.Get(ctx, id)
}

// LastResult reads the session's last execution result.
func (c *Coordinator) LastResult(ctx context.Context, id string) (*store.ExecutionResult, error) {
	return c.store.LastResult(ctx, id)
}

// Execute runs code inside the session's sandbox and waits for the result.
// The state gate runs here so callers get an immediate, actionable error
// instead of queueing work a worker would reject anyway.
func (c *Coordinator) Execute(ctx context.Context, id, code, filename, stdin string) (*tasks.Result, error) {
	sess, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.CanExecute() {
		return nil, &NotReadyError{Status: sess.Status}
	}

	h, err := c.tasks.SubmitSessionExecute(ctx, id, code, filename, stdin)
	if err != nil {
		return nil, err
	}
	return c.tasks.Await(ctx, h, c.cfg.ExecTimeout()+10*time.Second)
}

// Stop requests asynchronous teardown of the session's container. The
// record survives in the stopped state until its TTL lapses.
func (c *Coordinator) Stop(ctx context.Context, id string) error {
	sess, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == store.StatusStopped {
		return nil
	}

	if _, err := c.tasks.SubmitSessionStop(ctx, id); err != nil {
		return err
	}
	c.logger.Info("session stop requested", "session_id", id)
	return nil
}

// Stats fetches a resource-usage snapshot for the session's container.
func (c *Coordinator) Stats(ctx context.Context, id string) (*tasks.Result, error) {
	sess, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.ContainerID == "" {
		return nil, &NotReadyError{Status: sess.Status}
	}

	h, err := c.tasks.SubmitSessionStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.tasks.Await(ctx, h, statsAwait)
}

// EphemeralExecute runs code in a throwaway sandbox with no session record.
// Container setup and teardown happen inside the task, so the await budget
// is wider than for session execution.
func (c *Coordinator) EphemeralExecute(ctx context.Context, environment, code, filename, stdin string) (*tasks.Result, error) {
	if environment == "" {
		environment = c.reg.Defaults().DefaultEnvironment
	}
	if err := c.validateEnvironment(environment); err != nil {
		return nil, err
	}

	h, err := c.tasks.SubmitEphemeralExecute(ctx, environment, code, filename, stdin)
	if err != nil {
		return nil, err
	}
	return c.tasks.Await(ctx, h, c.cfg.ExecTimeout()+30*time.Second)
}

// Environments lists the enabled catalog entries.
func (c *Coordinator) Environments() []registry.Environment {
	names := c.reg.List()
	out := make([]registry.Environment, 0, len(names))
	for _, name := range names {
		env, err := c.reg.Get(name)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}
