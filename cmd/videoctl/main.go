package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/janhq/video-api/internal/app"
	"github.com/janhq/video-api/internal/config"
	"github.com/janhq/video-api/internal/infrastructure/logger"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "videoctl",
	Short: "Operate the video API pipeline from the command line",
	Long: `videoctl runs pipeline operations against the same database and object
store as the video API server.

Examples:
  # Package an asset synchronously with a custom ladder
  videoctl process vid_01J... --ladder config/ladder.yaml

  # Hand an asset to the server's workers
  videoctl enqueue vid_01J...

  # Make published trees readable by anonymous players
  videoctl public-read --prefix hls`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(publicReadCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(ladderCmd)

	rootCmd.PersistentFlags().String("env-file", "", "Load environment variables from this file first")
}

// withContainer loads configuration, builds the service graph and runs fn
// with a context cancelled on SIGINT or SIGTERM.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnv(envFile); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// the CLI talks to the store and database directly
	cfg.AuthEnabled = false
	cfg.EnableTracing = false

	log := logger.New(cfg)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Warn().Err(err).Msg("close resources")
		}
	}()
	return fn(ctx, container)
}

func loadEnv(path string) error {
	if path != "" {
		return godotenv.Overload(path)
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}
