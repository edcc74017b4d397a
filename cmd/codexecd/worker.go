package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/codexec/codexec/internal/executor"
	"github.com/codexec/codexec/internal/metrics"
	"github.com/codexec/codexec/internal/reaper"
	"github.com/codexec/codexec/internal/registry"
	"github.com/codexec/codexec/internal/store"
	"github.com/codexec/codexec/internal/tasks"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the task worker pool",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx := context.Background()

	st := store.New(cfg.RedisAddr(), cfg.RedisDB, cfg.TTL())
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		return err
	}

	reg, err := registry.Load(cfg.EnvironmentsFile)
	if err != nil {
		return err
	}

	ex, err := executor.New(cfg, reg, logger.With("component", "executor"))
	if err != nil {
		return err
	}
	defer ex.Close()
	if err := ex.Ping(ctx); err != nil {
		return err
	}

	m := metrics.New()
	rp := reaper.New(st, ex, m, logger.With("component", "reaper"))
	handlers := tasks.NewHandlers(st, ex, rp, cfg, m, logger.With("component", "tasks"))

	// Workers run in their own container, so the API port is free here and
	// doubles as the worker's metrics endpoint.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", m.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener", "error", err)
		}
	}()
	defer metricsSrv.Close()

	opt, err := tasks.RedisConn(cfg)
	if err != nil {
		return err
	}

	srv := tasks.NewServer(opt, cfg, logger.With("component", "asynq"))
	mux := asynq.NewServeMux()
	handlers.Register(mux)

	logger.Info("worker started", "concurrency", cfg.WorkerConcurrency)
	// Run blocks and handles SIGINT/SIGTERM with a graceful drain itself.
	return srv.Run(mux)
}
