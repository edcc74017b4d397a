package tasks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/codexec/codexec/internal/executor"
	"github.com/codexec/codexec/internal/reaper"
)

// MockSandboxExecutor mocks the SandboxExecutor interface.
type MockSandboxExecutor struct {
	mock.Mock
}

func (m *MockSandboxExecutor) CreateContainer(ctx context.Context, sessionID, environment string) (string, error) {
	args := m.Called(ctx, sessionID, environment)
	return args.String(0), args.Error(1)
}

func (m *MockSandboxExecutor) ExecuteCode(ctx context.Context, containerID, environment, code, filename, stdin string) *executor.Result {
	args := m.Called(ctx, containerID, environment, code, filename, stdin)
	return args.Get(0).(*executor.Result)
}

func (m *MockSandboxExecutor) StopContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockSandboxExecutor) Stats(ctx context.Context, containerID string) (*executor.ContainerStats, error) {
	args := m.Called(ctx, containerID)
	if stats := args.Get(0); stats != nil {
		return stats.(*executor.ContainerStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSandboxExecutor) RunOnce(ctx context.Context, environment, code, filename, stdin string) (*executor.Result, error) {
	args := m.Called(ctx, environment, code, filename, stdin)
	if res := args.Get(0); res != nil {
		return res.(*executor.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMaintenance mocks the Maintenance interface.
type MockMaintenance struct {
	mock.Mock
}

func (m *MockMaintenance) ReapOnce(ctx context.Context) reaper.Summary {
	args := m.Called(ctx)
	return args.Get(0).(reaper.Summary)
}

func (m *MockMaintenance) ForceCleanup(ctx context.Context) reaper.Summary {
	args := m.Called(ctx)
	return args.Get(0).(reaper.Summary)
}
