// codexecd is the sandboxed code execution service. One binary carries all
// process roles; pick one with a subcommand:
//
//	codexecd serve      HTTP API
//	codexecd worker     task worker pool
//	codexecd scheduler  periodic maintenance enqueuer
//	codexecd cleanup    one-shot: tear down every session and container
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codexec/codexec/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "codexecd",
	Short:         "Sandboxed code execution service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// A missing .env is fine; the environment wins either way.
	godotenv.Load()

	rootCmd.AddCommand(serveCmd, workerCmd, schedulerCmd, cleanupCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the process configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
