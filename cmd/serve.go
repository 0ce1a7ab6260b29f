package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/themepack/internal/devserver"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noContent bool

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s", "dev"},
		Short:   "Proxy the CMS with live reload",
		Long: `Build the theme, then watch its sources and rebuild on change.

The development proxy forwards to APP_URL and injects a live-reload
client into HTML responses. Stylesheet-only changes are swapped in place;
anything else reloads the page. A status page is served under
/__themepack/ and the theme directory is served on the content port.

Examples:
  themepack serve
  themepack serve --port 3001 --open
  APP_URL=http://cms.test themepack serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.bindFlags(cmd.Flags(), map[string]string{
				"proxy.port":   "port",
				"proxy.host":   "host",
				"proxy.open":   "open",
				"content.port": "content-port",
			}); err != nil {
				return err
			}
			if noContent {
				opts.v.Set("content.enabled", false)
			}

			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = devserver.New(cfg, logger).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntP("port", "p", 0, "port of the development proxy (default 3000)")
	cmd.Flags().String("host", "", "host to bind to (default localhost)")
	cmd.Flags().Bool("open", false, "open the proxy in a browser")
	cmd.Flags().Int("content-port", 0, "port of the content server (default 9000)")
	cmd.Flags().BoolVar(&noContent, "no-content", false, "do not serve the theme directory")

	return cmd
}
