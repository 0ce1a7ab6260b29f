package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/themepack/internal/config"
)

type resolvedConfig struct {
	Config *config.Config `yaml:"config"`
	Paths  config.Paths   `yaml:"paths"`
	File   string         `yaml:"file,omitempty"`
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration after defaults, the config file, THEMEPACK_
environment variables, APP_URL and theme.yaml have been applied, along
with the paths derived from it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(resolvedConfig{
				Config: cfg,
				Paths:  cfg.Paths(),
				File:   opts.v.ConfigFileUsed(),
			}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
