package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/janhq/video-api/internal/app"
	"github.com/janhq/video-api/internal/config"
	"github.com/janhq/video-api/internal/domain/encoder"
)

var processCmd = &cobra.Command{
	Use:   "process [asset-id]",
	Short: "Encode and publish an asset in this process",
	Long: `Runs the full pipeline for one asset and waits for it to finish. The asset
must not be processing elsewhere. Interrupting the command leaves the asset
in error.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [asset-id]",
	Short: "Queue an asset for the server's workers",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Mark assets left processing by a crashed server as error",
	RunE:  runRecover,
}

func init() {
	processCmd.Flags().String("ladder", "", "Quality ladder YAML (defaults to VIDEO_LADDER_FILE or the built-in ladder)")
	processCmd.Flags().Float64("segment-duration", 0, "Override the ladder's segment duration in seconds")
	enqueueCmd.Flags().String("ladder", "", "Quality ladder YAML stored with the job")
	enqueueCmd.Flags().Float64("segment-duration", 0, "Override the ladder's segment duration in seconds")
}

// ladderFromFlags returns the ladder named by --ladder, or nil when the flag
// is unset so the caller can fall back to the configured one.
func ladderFromFlags(cmd *cobra.Command) (*encoder.Config, error) {
	path, _ := cmd.Flags().GetString("ladder")
	segment, _ := cmd.Flags().GetFloat64("segment-duration")
	if path == "" && segment <= 0 {
		return nil, nil
	}
	ladder, err := config.LoadLadder(path, segment)
	if err != nil {
		return nil, err
	}
	return &ladder, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	ladder, err := ladderFromFlags(cmd)
	if err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		cfg := c.Ladder
		if ladder != nil {
			cfg = *ladder
		}

		start := time.Now()
		fmt.Printf("Processing %s (%d qualities, %.1fs segments)\n", args[0], len(cfg.Qualities), cfg.SegmentDuration)
		result, err := c.Orchestrator.ProcessAsset(ctx, args[0], cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Ready in %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  master:    %s\n", result.MasterManifestURL)
		if result.ThumbnailURL != "" {
			fmt.Printf("  thumbnail: %s\n", result.ThumbnailURL)
		}
		return nil
	})
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ladder, err := ladderFromFlags(cmd)
	if err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		a, err := c.Assets.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if err := c.Queue.EnqueueWithLadder(ctx, a.ID, ladder); err != nil {
			return err
		}
		fmt.Printf("Queued %s\n", a.ID)
		return nil
	})
}

func runRecover(cmd *cobra.Command, args []string) error {
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		n, err := c.Orchestrator.RecoverInterrupted(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Marked %d interrupted asset(s) as error\n", n)
		return nil
	})
}
