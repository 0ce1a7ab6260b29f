// Package cmd provides the command-line interface for themepack.
//
// Configuration System:
//
//	Settings are resolved with the following precedence:
//	1. Command-line flags (--theme, --mode, --inject, ...) - highest priority
//	2. THEMEPACK_<SECTION>_<OPTION> environment variables
//	3. The configuration file (--config, THEMEPACK_CONFIG_FILE or .themepack.yml)
//	4. Built-in defaults - lowest priority
//
// APP_URL is read from the process environment first, then from the
// application's dotenv file (env_file, ../../.env by default).
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/themepack/internal/config"
	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/logging"
)

// EnvPrefix prefixes every environment variable themepack reads.
const EnvPrefix = "THEMEPACK"

// rootOptions is shared by every command of one command tree.
type rootOptions struct {
	cfgFile   string
	logLevel  string
	logFormat string

	v *viper.Viper
}

// Execute runs the themepack command tree with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "themepack",
		Short: "Build and serve CMS themes",
		Long: `themepack builds the front-end assets of a CMS theme.

It discovers the theme's page templates under src/, bundles the script
and stylesheet entry with content-hashed names, purges unused CSS,
relocates fonts and images, and writes every template into the theme
directory with the asset tags injected where the inject policy says so.

Quick Start:
  themepack build                 Build the theme in the current directory
  themepack serve                 Proxy the CMS with live reload
  themepack pages                 List discovered templates
  themepack config                Print the resolved configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is .themepack.yml, can also use THEMEPACK_CONFIG_FILE env var)")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")
	flags.StringP("theme", "t", "", "theme directory (default is the current directory)")
	_ = opts.v.BindPFlag("theme_dir", flags.Lookup("theme"))

	rootCmd.AddCommand(
		newBuildCmd(opts),
		newServeCmd(opts),
		newPagesCmd(opts),
		newConfigCmd(opts),
		newPublishCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// initConfig selects and reads the configuration file and enables
// THEMEPACK_ environment overrides. A missing default file is not an error.
func (o *rootOptions) initConfig() error {
	explicit := true
	switch {
	case o.cfgFile != "":
		o.v.SetConfigFile(o.cfgFile)
	case os.Getenv(EnvPrefix+"_CONFIG_FILE") != "":
		o.v.SetConfigFile(os.Getenv(EnvPrefix + "_CONFIG_FILE"))
	default:
		explicit = false
		o.v.AddConfigPath(".")
		o.v.SetConfigType("yaml")
		o.v.SetConfigName(".themepack")
	}

	o.v.SetEnvPrefix(EnvPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	o.v.AutomaticEnv()

	err := o.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return nil
	case !explicit && errors.As(err, &notFound):
		return nil
	default:
		return perrors.NewConfigError(perrors.CodeConfigLoad, "failed to read config file", err).
			WithPath(o.v.ConfigFileUsed())
	}
}

// bindFlags binds flags of the running command to config keys. Several
// commands share keys such as "mode", so binding happens at run time.
func (o *rootOptions) bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := o.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.LoadFrom(o.v)
}

// logger writes to the command's stderr so tests can capture it.
func (o *rootOptions) logger(cmd *cobra.Command) (logging.Logger, error) {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	if o.logFormat != "text" && o.logFormat != "json" {
		return nil, fmt.Errorf("unsupported log format: %s (supported: text, json)", o.logFormat)
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: o.logFormat,
		Output: cmd.ErrOrStderr(),
	}), nil
}

// setup loads the configuration and builds the logger in one step.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	logger, err := o.logger(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
