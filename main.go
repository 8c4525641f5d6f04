package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blobject/emergence-sub000/config"
)

var (
	configPath string
	seed       int64
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "emergence",
		Short: "Primordial particle system simulator",
		Long: `emergence runs a primordial particle system: agents on a wrapping
arena turn towards or away from their neighbours and move a fixed step each
tick. Spores and cells emerge from the motion rule alone.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Set up slog (JSON to stdout for structured logging)
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			out := os.Stdout
			if cmd != runCmd {
				// cluster and sweep print CSV on stdout
				out = os.Stderr
			}
			logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			// Initialize config before anything else
			if err := config.Init(configPath); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "RNG seed (0 = config seed, time-based if that is 0 too)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd, clusterCmd, sweepCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// runSeed resolves the seed flag against the loaded config.
func runSeed(cfg *config.Config) int64 {
	switch {
	case seed != 0:
		return seed
	case cfg.Run.Seed != 0:
		return cfg.Run.Seed
	}
	return time.Now().UnixNano()
}

// ignoreCanceled treats an interrupted run as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
