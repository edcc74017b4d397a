package reaper

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/codexec/codexec/internal/store"
)

// MockReaperStore mocks the ReaperStore interface.
type MockReaperStore struct {
	mock.Mock
}

func (m *MockReaperStore) ReconcileActiveSet(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if ids := args.Get(0); ids != nil {
		return ids.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperStore) ActiveSessions(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if ids := args.Get(0); ids != nil {
		return ids.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperStore) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockReaperStore) Get(ctx context.Context, id string) (*store.Session, error) {
	args := m.Called(ctx, id)
	if sess := args.Get(0); sess != nil {
		return sess.(*store.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockReaperExecutor mocks the ReaperExecutor interface.
type MockReaperExecutor struct {
	mock.Mock
}

func (m *MockReaperExecutor) Sweep(ctx context.Context, live func(context.Context, string) (bool, error)) ([]string, error) {
	args := m.Called(ctx, live)
	if ids := args.Get(0); ids != nil {
		return ids.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperExecutor) StopContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}
