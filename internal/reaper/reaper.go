// Package reaper reconciles the session store with the containers that
// actually exist. Records expire on their own via TTL; the reaper's job is
// everything that doesn't: stale active-set members and containers whose
// owning record is gone (service crash, missed stop, expired session).
package reaper

import (
	"context"
	"log/slog"

	"github.com/codexec/codexec/internal/metrics"
)

type Reaper struct {
	store    ReaperStore
	executor ReaperExecutor
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Summary reports what one reaper pass removed.
type Summary struct {
	GhostsDropped     int `json:"ghosts_dropped"`
	ContainersRemoved int `json:"containers_removed"`
	SessionsDeleted   int `json:"sessions_deleted,omitempty"`
}

func New(st ReaperStore, ex ReaperExecutor, m *metrics.Metrics, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    st,
		executor: ex,
		metrics:  m,
		logger:   logger,
	}
}

// ReapOnce runs a single reconciliation pass: drop active-set ids whose
// record has expired, then remove managed containers with no live record.
// Every failure is logged and swallowed; the reaper never fails a running
// session.
func (r *Reaper) ReapOnce(ctx context.Context) Summary {
	var sum Summary

	ghosts, err := r.store.ReconcileActiveSet(ctx)
	if err != nil {
		r.logger.Error("reaper: reconcile active set", "error", err)
	}
	sum.GhostsDropped = len(ghosts)
	for _, id := range ghosts {
		r.logger.Info("reaper: dropped expired session from active set", "session_id", id)
	}

	removed, err := r.executor.Sweep(ctx, r.store.Exists)
	if err != nil {
		r.logger.Error("reaper: sweep containers", "error", err)
	}
	sum.ContainersRemoved = len(removed)

	if sum.GhostsDropped > 0 || sum.ContainersRemoved > 0 {
		r.logger.Info("reaper: pass complete",
			"ghosts_dropped", sum.GhostsDropped, "containers_removed", sum.ContainersRemoved)
	}
	r.metrics.ReapObserved(sum.GhostsDropped, sum.ContainersRemoved)
	return sum
}

// ForceCleanup stops and deletes every active session, then sweeps
// leftovers. Operational maintenance only; it takes down live sessions.
func (r *Reaper) ForceCleanup(ctx context.Context) Summary {
	var sum Summary

	ids, err := r.store.ActiveSessions(ctx)
	if err != nil {
		r.logger.Error("force cleanup: list active sessions", "error", err)
	}

	for _, id := range ids {
		sess, err := r.store.Get(ctx, id)
		if err == nil && sess.ContainerID != "" {
			if err := r.executor.StopContainer(ctx, sess.ContainerID); err != nil {
				r.logger.Error("force cleanup: stop container",
					"session_id", id, "container_id", sess.ContainerID, "error", err)
			} else {
				sum.ContainersRemoved++
			}
		}
		if err := r.store.Delete(ctx, id); err != nil {
			r.logger.Error("force cleanup: delete session", "session_id", id, "error", err)
			continue
		}
		sum.SessionsDeleted++
	}

	removed, err := r.executor.Sweep(ctx, r.store.Exists)
	if err != nil {
		r.logger.Error("force cleanup: sweep containers", "error", err)
	}
	sum.ContainersRemoved += len(removed)

	r.logger.Info("force cleanup complete",
		"sessions_deleted", sum.SessionsDeleted, "containers_removed", sum.ContainersRemoved)
	return sum
}
