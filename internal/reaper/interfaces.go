package reaper

import (
	"context"

	"github.com/codexec/codexec/internal/store"
)

// ReaperStore abstracts the session-store operations the reaper needs.
type ReaperStore interface {
	ReconcileActiveSet(ctx context.Context) ([]string, error)
	ActiveSessions(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*store.Session, error)
	Delete(ctx context.Context, id string) error
}

// ReaperExecutor abstracts the container operations the reaper needs.
type ReaperExecutor interface {
	Sweep(ctx context.Context, live func(context.Context, string) (bool, error)) ([]string, error)
	StopContainer(ctx context.Context, containerID string) error
}
