package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexec/codexec/internal/api"
	"github.com/codexec/codexec/internal/metrics"
	"github.com/codexec/codexec/internal/registry"
	"github.com/codexec/codexec/internal/session"
	"github.com/codexec/codexec/internal/store"
	"github.com/codexec/codexec/internal/tasks"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.RedisAddr(), cfg.RedisDB, cfg.TTL())
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		return err
	}

	reg, err := registry.Load(cfg.EnvironmentsFile)
	if err != nil {
		return err
	}

	opt, err := tasks.RedisConn(cfg)
	if err != nil {
		return err
	}
	tc := tasks.NewClient(opt, cfg.ExecTimeout())
	defer tc.Close()

	m := metrics.New()
	coord := session.NewCoordinator(cfg, st, reg, tc, m, logger.With("component", "session"))
	srv := api.NewServer(coord, m, logger.With("component", "api"))

	httpSrv := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.APIAddr())
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
