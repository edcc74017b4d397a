package api

import (
	"context"

	"github.com/codexec/codexec/internal/registry"
	"github.com/codexec/codexec/internal/store"
	"github.com/codexec/codexec/internal/tasks"
)

// SessionService abstracts the session coordinator for the HTTP handlers.
type SessionService interface {
	Create(ctx context.Context, environment string) (*store.Session, error)
	Get(ctx context.Context, id string) (*store.Session, error)
	Execute(ctx context.Context, id, code, filename, stdin string) (*tasks.Result, error)
	Stop(ctx context.Context, id string) error
	Stats(ctx context.Context, id string) (*tasks.Result, error)
	EphemeralExecute(ctx context.Context, environment, code, filename, stdin string) (*tasks.Result, error)
	Environments() []registry.Environment
}
