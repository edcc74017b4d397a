package session

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/codexec/codexec/internal/tasks"
)

// MockTaskClient mocks the TaskClient interface.
type MockTaskClient struct {
	mock.Mock
}

func (m *MockTaskClient) SubmitSessionStart(ctx context.Context, sessionID, environment string) (*tasks.Handle, error) {
	args := m.Called(ctx, sessionID, environment)
	if h := args.Get(0); h != nil {
		return h.(*tasks.Handle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskClient) SubmitSessionExecute(ctx context.Context, sessionID, code, filename, stdin string) (*tasks.Handle, error) {
	args := m.Called(ctx, sessionID, code, filename, stdin)
	if h := args.Get(0); h != nil {
		return h.(*tasks.Handle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskClient) SubmitSessionStop(ctx context.Context, sessionID string) (*tasks.Handle, error) {
	args := m.Called(ctx, sessionID)
	if h := args.Get(0); h != nil {
		return h.(*tasks.Handle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskClient) SubmitSessionStats(ctx context.Context, sessionID string) (*tasks.Handle, error) {
	args := m.Called(ctx, sessionID)
	if h := args.Get(0); h != nil {
		return h.(*tasks.Handle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskClient) SubmitEphemeralExecute(ctx context.Context, environment, code, filename, stdin string) (*tasks.Handle, error) {
	args := m.Called(ctx, environment, code, filename, stdin)
	if h := args.Get(0); h != nil {
		return h.(*tasks.Handle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskClient) Await(ctx context.Context, h *tasks.Handle, timeout time.Duration) (*tasks.Result, error) {
	args := m.Called(ctx, h, timeout)
	if res := args.Get(0); res != nil {
		return res.(*tasks.Result), args.Error(1)
	}
	return nil, args.Error(1)
}
