package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/themepack/internal/version"
)

func newVersionCmd() *cobra.Command {
	var (
		format   string
		short    bool
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for themepack including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version used for compilation
- Target platform (OS/architecture)

Examples:
  themepack version              # Show version
  themepack version --detailed   # Show detailed version info
  themepack version --format json # Output as JSON`,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeVersion(cmd.OutOrStdout(), version.Get(), format, short, detailed)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().BoolVar(&short, "short", false, "show short version only")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "show detailed version information")

	return cmd
}

func writeVersion(w io.Writer, info *version.BuildInfo, format string, short, detailed bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
	}

	var err error
	switch {
	case short:
		_, err = fmt.Fprintln(w, info.Short())
	case detailed:
		_, err = fmt.Fprintf(w, "themepack\n%s\n", info.Detailed())
	default:
		line := "themepack " + info.Version
		if c := info.ShortCommit(); c != "" {
			line += " (" + c + ")"
		}
		if info.Dirty {
			line += " (dirty)"
		}
		_, err = fmt.Fprintln(w, line)
	}
	return err
}
