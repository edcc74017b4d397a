package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/codexec/codexec/internal/registry"
	"github.com/codexec/codexec/internal/store"
	"github.com/codexec/codexec/internal/tasks"
)

// MockSessionService mocks the SessionService interface.
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Create(ctx context.Context, environment string) (*store.Session, error) {
	args := m.Called(ctx, environment)
	if sess := args.Get(0); sess != nil {
		return sess.(*store.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Get(ctx context.Context, id string) (*store.Session, error) {
	args := m.Called(ctx, id)
	if sess := args.Get(0); sess != nil {
		return sess.(*store.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Execute(ctx context.Context, id, code, filename, stdin string) (*tasks.Result, error) {
	args := m.Called(ctx, id, code, filename, stdin)
	if res := args.Get(0); res != nil {
		return res.(*tasks.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Stop(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionService) Stats(ctx context.Context, id string) (*tasks.Result, error) {
	args := m.Called(ctx, id)
	if res := args.Get(0); res != nil {
		return res.(*tasks.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) EphemeralExecute(ctx context.Context, environment, code, filename, stdin string) (*tasks.Result, error) {
	args := m.Called(ctx, environment, code, filename, stdin)
	if res := args.Get(0); res != nil {
		return res.(*tasks.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Environments() []registry.Environment {
	args := m.Called()
	if envs := args.Get(0); envs != nil {
		return envs.([]registry.Environment)
	}
	return nil
}
