package cmd

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/conneroisu/themepack/internal/config"
	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/pipeline"
	"github.com/conneroisu/themepack/internal/publish"
)

func newPublishCmd(opts *rootOptions) *cobra.Command {
	var build bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the built assets to S3-compatible storage",
		Long: `Upload every file in the theme's assets directory to a bucket.

Credentials are read from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
AWS_SESSION_TOKEN. Objects are keyed <prefix>/<path relative to assets/>;
the prefix defaults to themes/<theme>/assets so the bucket mirrors the
CMS public path.

Examples:
  themepack publish --bucket cdn-themes
  themepack publish --build --mode production --bucket cdn-themes
  themepack publish --bucket themes --endpoint http://localhost:9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.bindFlags(cmd.Flags(), map[string]string{
				"mode":             "mode",
				"publish.bucket":   "bucket",
				"publish.prefix":   "prefix",
				"publish.region":   "region",
				"publish.endpoint": "endpoint",
			}); err != nil {
				return err
			}

			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			if cfg.Publish.Bucket == "" {
				return perrors.NewConfigError(perrors.CodePublish, "no bucket configured (use --bucket or publish.bucket)", nil)
			}

			ctx := cmd.Context()
			if build {
				plan, err := pipeline.NewPlan(ctx, cfg, logger)
				if err != nil {
					return err
				}
				if _, err := pipeline.NewRunner(logger, nil).Run(ctx, plan); err != nil {
					return err
				}
			}

			publisher := publish.New(publish.NewClient(cfg.Publish), cfg.Publish.Bucket, logger)
			res, err := publisher.Publish(ctx, cfg.Paths().Assets, publishPrefix(cfg))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d objects to s3://%s/%s\n",
				len(res.Keys), cfg.Publish.Bucket, publishPrefix(cfg))
			return nil
		},
	}

	cmd.Flags().BoolVar(&build, "build", false, "run a build before uploading")
	cmd.Flags().String("mode", "", "build mode used with --build (development, production)")
	cmd.Flags().String("bucket", "", "destination bucket")
	cmd.Flags().String("prefix", "", "object key prefix (default themes/<theme>/assets)")
	cmd.Flags().String("region", "", "bucket region (default us-east-1)")
	cmd.Flags().String("endpoint", "", "custom S3 endpoint, e.g. a MinIO server")

	return cmd
}

func publishPrefix(cfg *config.Config) string {
	if cfg.Publish.Prefix != "" {
		return cfg.Publish.Prefix
	}
	return path.Join("themes", cfg.Theme.Name(), "assets")
}
