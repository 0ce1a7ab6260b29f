package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/themepack/internal/pages"
	"github.com/conneroisu/themepack/internal/pipeline"
)

func newPagesCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		inject pages.InjectPolicy
	)

	cmd := &cobra.Command{
		Use:     "pages",
		Aliases: []string{"p", "ls"},
		Short:   "List the page templates a build would generate",
		Long: `Walk the theme's src/ directory and print one page descriptor per
template: where it is written, whether asset tags are injected, and
whether it is minified. Nothing is written to disk.

Examples:
  themepack pages
  themepack pages -o json
  themepack pages --inject content -o yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.bindFlags(cmd.Flags(), map[string]string{"pages.inject": "inject"}); err != nil {
				return err
			}

			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}

			plan, err := pipeline.NewPlan(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			return writePages(cmd.OutOrStdout(), format, plan)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format (table, json, yaml)")
	cmd.Flags().Var(&inject, "inject", "asset tag injection policy (never, content, layouts)")

	return cmd
}

func writePages(w io.Writer, format string, plan *pipeline.Plan) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan.Pages)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plan.Pages); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		return writePagesTable(w, plan)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", format)
	}
}

func writePagesTable(w io.Writer, plan *pipeline.Plan) error {
	if len(plan.Pages) == 0 {
		_, err := fmt.Fprintf(w, "No templates found in %s\n", plan.Paths.Source)
		return err
	}

	title := cases.Title(language.English)
	headers := []string{"destination", "source", "inject", "minify"}
	for i, h := range headers {
		headers[i] = title.String(h)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, p := range plan.Pages {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			relTo(plan.Paths.Output, p.Destination),
			relTo(plan.Paths.Source, p.Source),
			yesNo(p.InjectIntoOutput),
			yesNo(p.Minify))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d templates in theme %s\n", len(plan.Pages), plan.Theme)
	return err
}

func relTo(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
