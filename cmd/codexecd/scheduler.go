package main

import (
	"github.com/spf13/cobra"

	"github.com/codexec/codexec/internal/tasks"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the periodic maintenance scheduler",
	RunE:  runScheduler,
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	opt, err := tasks.RedisConn(cfg)
	if err != nil {
		return err
	}

	sched, err := tasks.NewScheduler(opt, logger.With("component", "scheduler"))
	if err != nil {
		return err
	}

	logger.Info("scheduler started")
	return sched.Run()
}
