package tasks

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// slogAdapter bridges asynq's logger interface onto slog.
type slogAdapter struct {
	l *slog.Logger
}

// NewLogger wraps an slog.Logger for use as an asynq.Logger.
func NewLogger(l *slog.Logger) asynq.Logger {
	return &slogAdapter{l: l}
}

func (a *slogAdapter) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }

func (a *slogAdapter) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
