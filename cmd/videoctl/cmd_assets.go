package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/janhq/video-api/internal/app"
	"github.com/janhq/video-api/internal/config"
	"github.com/janhq/video-api/internal/domain/hls"
	"github.com/janhq/video-api/internal/domain/processing"
	"github.com/janhq/video-api/internal/interfaces/httpserver/responses"
)

var statusCmd = &cobra.Command{
	Use:   "status [asset-id]",
	Short: "Print an asset as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var publicReadCmd = &cobra.Command{
	Use:   "public-read",
	Short: "Grant anonymous read access to a key prefix",
	Long:  `Applies the public read policy for the prefix. Running it again is a no-op.`,
	RunE:  runPublicRead,
}

var manifestCmd = &cobra.Command{
	Use:   "manifest [asset-id]",
	Short: "Render an asset's master playlist from its stored variants",
	Long: `Prints the master playlist of a ready asset. With --publish the playlist is
also uploaded over the published one, which repoints players at a new
base URL without re-encoding.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

var ladderCmd = &cobra.Command{
	Use:   "ladder",
	Short: "Print the effective quality ladder",
	RunE:  runLadder,
}

func init() {
	publicReadCmd.Flags().String("prefix", "", "Key prefix (defaults to VIDEO_PUBLISH_PREFIX)")
	manifestCmd.Flags().String("base-url", "", "Absolute base URL for variant references (defaults to relative)")
	manifestCmd.Flags().Bool("publish", false, "Upload the rendered master playlist")
	ladderCmd.Flags().String("file", "", "Ladder file (defaults to VIDEO_LADDER_FILE)")
	ladderCmd.Flags().Bool("schema", false, "Print the JSON Schema of ladder files instead")
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		a, err := c.Assets.Get(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(responses.NewAssetResponse(a))
	})
}

func runPublicRead(cmd *cobra.Command, args []string) error {
	prefix, _ := cmd.Flags().GetString("prefix")
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		if prefix == "" {
			prefix = c.Config.PublishPrefix
		}
		changed, err := c.Publisher.SetPublicReadPolicy(ctx, prefix)
		if err != nil {
			return err
		}
		if changed {
			fmt.Printf("Public read granted on %s/%s\n", c.Publisher.Store().Bucket(), prefix)
		} else {
			fmt.Printf("Public read already granted on %s/%s\n", c.Publisher.Store().Bucket(), prefix)
		}
		return nil
	})
}

func runManifest(cmd *cobra.Command, args []string) error {
	baseURL, _ := cmd.Flags().GetString("base-url")
	doPublish, _ := cmd.Flags().GetBool("publish")

	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		a, err := c.Assets.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if len(a.Variants) == 0 {
			return fmt.Errorf("asset %s has no published variants (status %s)", a.ID, a.Status)
		}

		manifests := c.Orchestrator.Manifests()
		if baseURL != "" {
			manifests = processing.Manifests{Layout: manifests.Layout, Resolver: hls.Resolver{BaseURL: baseURL}}
		}
		obj, err := manifests.MasterObject(a)
		if err != nil {
			return err
		}
		fmt.Print(string(obj.Body))

		if !doPublish {
			return nil
		}
		if err := c.Publisher.Store().PutObject(ctx, obj); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Published %s\n", c.Publisher.Store().PublicURL(obj.Key))
		return nil
	})
}

// runLadder needs no database or store.
func runLadder(cmd *cobra.Command, args []string) error {
	if schema, _ := cmd.Flags().GetBool("schema"); schema {
		data, err := config.LadderSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = os.Getenv("VIDEO_LADDER_FILE")
	}
	ladder, err := config.LoadLadder(path, 0)
	if err != nil {
		return err
	}
	out := yaml.NewEncoder(os.Stdout)
	out.SetIndent(2)
	defer out.Close()
	if err := out.Encode(ladder); err != nil {
		return err
	}
	return nil
}
