package tasks

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/codexec/codexec/internal/config"
)

// RedisConn parses the broker URL into an asynq connection option shared by
// the client, the worker server, and the scheduler.
func RedisConn(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url %q: %w", cfg.BrokerURL, err)
	}
	return opt, nil
}

// NewServer builds the worker-side task server. Call Register on a ServeMux
// and hand both to Run.
func NewServer(opt asynq.RedisConnOpt, cfg *config.Config, logger *slog.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{queueDefault: 1},
		Logger:      NewLogger(logger),
	})
}

// NewScheduler builds the periodic-task scheduler with the reaper pass
// registered.
func NewScheduler(opt asynq.RedisConnOpt, logger *slog.Logger) (*asynq.Scheduler, error) {
	sched := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Logger: NewLogger(logger),
	})
	_, err := sched.Register(fmt.Sprintf("@every %s", reapInterval),
		asynq.NewTask(TypeReap, nil),
		asynq.Queue(queueDefault),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return nil, fmt.Errorf("register reap task: %w", err)
	}
	return sched, nil
}
