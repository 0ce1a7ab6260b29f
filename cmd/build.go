package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/themepack/internal/pages"
	"github.com/conneroisu/themepack/internal/pipeline"
)

func newBuildCmd(opts *rootOptions) *cobra.Command {
	var (
		inject  pages.InjectPolicy
		noClean bool
		noPurge bool
	)

	cmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Build the theme assets and pages",
		Long: `Run one build of the theme.

The build cleans the assets directory, bundles the entry script and its
stylesheets with content-hashed names, copies static files, and writes
every discovered template into the theme directory. A manifest of the
generated files is written to assets/manifest.json.

Examples:
  themepack build
  themepack build --mode production
  themepack build --inject layouts --no-purge`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.bindFlags(cmd.Flags(), map[string]string{
				"mode":          "mode",
				"pages.inject":  "inject",
				"assets.minify": "minify",
			}); err != nil {
				return err
			}
			if noClean {
				opts.v.Set("clean", false)
			}
			if noPurge {
				opts.v.Set("purge.enabled", false)
			}
			return runBuild(cmd, opts)
		},
	}

	cmd.Flags().String("mode", "", "build mode (development, production)")
	cmd.Flags().Var(&inject, "inject", "asset tag injection policy (never, content, layouts)")
	cmd.Flags().Bool("minify", false, "minify scripts and stylesheets outside production mode")
	cmd.Flags().BoolVar(&noClean, "no-clean", false, "keep existing files in the assets directory")
	cmd.Flags().BoolVar(&noPurge, "no-purge", false, "keep unused CSS rules")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	plan, err := pipeline.NewPlan(ctx, cfg, logger)
	if err != nil {
		return err
	}

	report, err := pipeline.NewRunner(logger, nil).Run(ctx, plan)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	return nil
}

func printReport(w io.Writer, report *pipeline.Report) {
	fmt.Fprintf(w, "Built theme %s in %s\n", report.Theme, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  pages:  %d\n", len(report.Pages))
	fmt.Fprintf(w, "  assets: %d\n", len(report.Files))
	if report.Copied > 0 {
		fmt.Fprintf(w, "  copied: %d\n", report.Copied)
	}
	for _, s := range report.Scripts {
		fmt.Fprintf(w, "  script: %s\n", s)
	}
	for _, s := range report.Styles {
		fmt.Fprintf(w, "  style:  %s\n", s)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}
