package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexec/codexec/internal/tasks"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Tear down every session and managed container",
	Long: `Enqueues a force-cleanup task and waits for the worker's summary.
Every active session is deleted and its container removed. Operational
use only; running sessions are not spared.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}

	opt, err := tasks.RedisConn(cfg)
	if err != nil {
		return err
	}
	tc := tasks.NewClient(opt, cfg.ExecTimeout())
	defer tc.Close()

	ctx := context.Background()
	h, err := tc.SubmitCleanup(ctx)
	if err != nil {
		return err
	}

	res, err := tc.Await(ctx, h, 2*time.Minute)
	if err != nil {
		return err
	}

	fmt.Printf("cleanup complete: %d sessions deleted, %d containers removed, %d ghost ids dropped\n",
		res.SessionsDeleted, res.ContainersRemoved, res.GhostsDropped)
	return nil
}
