// Package config provides configuration management for themepack using
// Viper for loading from files, environment variables, and command-line
// flags.
//
// Three sources feed a Config: the project file (.themepack.yml), the
// application dotenv file shared with the CMS (APP_URL), and the theme
// manifest (theme.yaml) that names the theme. Paths returns everything the
// pipeline derives from them.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/pages"
)

// Modes accepted by Config.Mode.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Config struct {
	ThemeDir string        `mapstructure:"theme_dir" yaml:"theme_dir"`
	EnvFile  string        `mapstructure:"env_file" yaml:"env_file"`
	AppURL   string        `mapstructure:"app_url" yaml:"app_url"`
	Mode     string        `mapstructure:"mode" yaml:"mode"`
	Clean    bool          `mapstructure:"clean" yaml:"clean"`
	Pages    PagesConfig   `mapstructure:"pages" yaml:"pages"`
	Assets   AssetsConfig  `mapstructure:"assets" yaml:"assets"`
	Purge    PurgeConfig   `mapstructure:"purge" yaml:"purge"`
	Copy     []CopyConfig  `mapstructure:"copy" yaml:"copy"`
	Proxy    ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	Content  ContentConfig `mapstructure:"content" yaml:"content"`
	Publish  PublishConfig `mapstructure:"publish" yaml:"publish"`

	// Theme is read from theme.yaml, never from the project file.
	Theme Theme `mapstructure:"-" yaml:"theme"`
}

type PagesConfig struct {
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Inject     string   `mapstructure:"inject" yaml:"inject"`
	Minify     bool     `mapstructure:"minify" yaml:"minify"`
}

type AssetsConfig struct {
	Entry     string `mapstructure:"entry" yaml:"entry"`
	JSName    string `mapstructure:"js_name" yaml:"js_name"`
	CSSName   string `mapstructure:"css_name" yaml:"css_name"`
	FontsDir  string `mapstructure:"fonts_dir" yaml:"fonts_dir"`
	ImagesDir string `mapstructure:"images_dir" yaml:"images_dir"`
	Target    string `mapstructure:"target" yaml:"target"`
	Minify    bool   `mapstructure:"minify" yaml:"minify"`
}

type PurgeConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Safelist []string `mapstructure:"safelist" yaml:"safelist"`
}

// CopyConfig copies From (relative to the source dir) to To (relative to the
// assets dir).
type CopyConfig struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

type ProxyConfig struct {
	Host       string        `mapstructure:"host" yaml:"host"`
	Port       int           `mapstructure:"port" yaml:"port"`
	TargetPort int           `mapstructure:"target_port" yaml:"target_port"`
	Open       bool          `mapstructure:"open" yaml:"open"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type ContentConfig struct {
	Enabled  bool `mapstructure:"enabled" yaml:"enabled"`
	Port     int  `mapstructure:"port" yaml:"port"`
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

type PublishConfig struct {
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("theme_dir", ".")
	v.SetDefault("env_file", filepath.Join("..", "..", ".env"))
	v.SetDefault("mode", ModeDevelopment)
	v.SetDefault("clean", true)

	v.SetDefault("pages.extensions", []string{"htm", "html", "txt"})
	v.SetDefault("pages.inject", string(pages.InjectNever))
	v.SetDefault("pages.minify", true)

	v.SetDefault("assets.entry", "index.js")
	v.SetDefault("assets.js_name", "javascript/theme-[hash].js")
	v.SetDefault("assets.css_name", "css/theme-[hash].css")
	v.SetDefault("assets.fonts_dir", "fonts")
	v.SetDefault("assets.images_dir", "images")
	v.SetDefault("assets.target", "es2017")
	v.SetDefault("assets.minify", false)

	v.SetDefault("purge.enabled", true)

	v.SetDefault("proxy.host", "localhost")
	v.SetDefault("proxy.port", 3000)
	v.SetDefault("proxy.target_port", 80)
	v.SetDefault("proxy.open", false)
	v.SetDefault("proxy.debounce", 300*time.Millisecond)

	v.SetDefault("content.enabled", true)
	v.SetDefault("content.port", 9000)
	v.SetDefault("content.compress", true)

	v.SetDefault("publish.region", "us-east-1")
}

// Load builds a Config from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds a Config from v, then resolves the dotenv file and the
// theme manifest relative to the theme directory.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, perrors.NewConfigError(perrors.CodeConfigLoad, "failed to decode configuration", err)
	}

	cfg.Pages.Extensions = normalizeExtensions(cfg.Pages.Extensions)

	themeDir, err := filepath.Abs(cfg.ThemeDir)
	if err != nil {
		return nil, perrors.NewConfigError(perrors.CodeConfigLoad, "failed to resolve theme directory", err)
	}
	cfg.ThemeDir = themeDir

	if err := cfg.resolveAppURL(); err != nil {
		return nil, err
	}

	theme, err := LoadTheme(themeDir)
	if err != nil {
		return nil, err
	}
	cfg.Theme = *theme

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveAppURL applies the precedence process env > dotenv file > config.
func (c *Config) resolveAppURL() error {
	if env := os.Getenv("APP_URL"); env != "" {
		c.AppURL = env
		return nil
	}

	if c.EnvFile == "" {
		return nil
	}

	envPath := c.EnvFile
	if !filepath.IsAbs(envPath) {
		envPath = filepath.Join(c.ThemeDir, envPath)
	}

	values, err := LoadDotEnv(envPath)
	if err != nil {
		return err
	}
	if appURL := values["app_url"]; appURL != "" {
		c.AppURL = appURL
	}

	return nil
}

// LoadDotEnv reads a dotenv file. A missing file yields an empty map. Keys
// are lower-cased the way Viper stores them.
func LoadDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, perrors.NewConfigError(perrors.CodeConfigLoad, "failed to read env file", err).WithPath(path)
	}

	values := make(map[string]string, len(v.AllKeys()))
	for _, key := range v.AllKeys() {
		values[key] = v.GetString(key)
	}
	return values, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return perrors.NewConfigError(perrors.CodeConfigInvalid, fmt.Sprintf(format, args...), nil)
	}

	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return invalid("mode %q is not one of %s, %s", c.Mode, ModeDevelopment, ModeProduction)
	}

	if len(c.Pages.Extensions) == 0 {
		return invalid("pages.extensions must not be empty")
	}
	for _, ext := range c.Pages.Extensions {
		if ext == "" || strings.ContainsAny(ext, `/\`) {
			return invalid("invalid page extension %q", ext)
		}
	}

	if _, err := pages.ParseInjectPolicy(c.Pages.Inject); err != nil {
		return perrors.NewConfigError(perrors.CodeConfigInvalid, "pages.inject", err)
	}

	for name, port := range map[string]int{
		"proxy.port":        c.Proxy.Port,
		"proxy.target_port": c.Proxy.TargetPort,
		"content.port":      c.Content.Port,
	} {
		if port < 0 || port > 65535 {
			return invalid("%s %d is not in valid range 0-65535", name, port)
		}
	}

	if c.Assets.Entry == "" {
		return invalid("assets.entry must not be empty")
	}
	for _, name := range []string{c.Assets.JSName, c.Assets.CSSName} {
		if err := validateRelative(name); err != nil {
			return invalid("asset name %q: %v", name, err)
		}
	}

	for _, cp := range c.Copy {
		if cp.From == "" {
			return invalid("copy entries need a from path")
		}
		if err := validateRelative(cp.From); err != nil {
			return invalid("copy from %q: %v", cp.From, err)
		}
		if cp.To != "" {
			if err := validateRelative(cp.To); err != nil {
				return invalid("copy to %q: %v", cp.To, err)
			}
		}
	}

	if c.AppURL != "" {
		u, err := url.Parse(c.AppURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("APP_URL %q is not an absolute URL", c.AppURL)
		}
	}

	return nil
}

// normalizeExtensions trims whitespace and a leading dot from each entry.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

// validateRelative rejects absolute paths and traversal out of the base dir.
func validateRelative(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(clean) {
		return fmt.Errorf("must be relative")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes its base directory")
	}
	return nil
}

// Paths are the locations the pipeline derives from a Config.
type Paths struct {
	Theme       string `json:"theme" yaml:"theme"`
	Source      string `json:"source" yaml:"source"`
	Output      string `json:"output" yaml:"output"`
	Assets      string `json:"assets" yaml:"assets"`
	Entry       string `json:"entry" yaml:"entry"`
	PublicPath  string `json:"public_path" yaml:"public_path"`
	ProxyTarget string `json:"proxy_target,omitempty" yaml:"proxy_target,omitempty"`
}

// Paths derives source, output and public locations for the theme.
func (c *Config) Paths() Paths {
	source := filepath.Join(c.ThemeDir, "src")
	p := Paths{
		Theme:      c.ThemeDir,
		Source:     source,
		Output:     c.ThemeDir,
		Assets:     filepath.Join(c.ThemeDir, "assets"),
		Entry:      filepath.Join(source, filepath.FromSlash(c.Assets.Entry)),
		PublicPath: c.PublicPath(),
	}
	if target, err := c.ProxyTarget(); err == nil {
		p.ProxyTarget = target.String()
	}
	return p
}

// PublicPath is the URL the CMS serves the theme assets from.
func (c *Config) PublicPath() string {
	base := strings.TrimRight(c.AppURL, "/")
	return base + "/themes/" + c.Theme.Name() + "/assets/"
}

// ProxyTarget is the CMS origin the development proxy forwards to. The
// configured target port applies only when APP_URL carries none.
func (c *Config) ProxyTarget() (*url.URL, error) {
	if c.AppURL == "" {
		return nil, perrors.NewConfigError(perrors.CodeConfigInvalid, "APP_URL is not set", nil)
	}

	u, err := url.Parse(c.AppURL)
	if err != nil {
		return nil, perrors.NewConfigError(perrors.CodeConfigInvalid, "APP_URL is not a valid URL", err)
	}

	if u.Port() == "" && c.Proxy.TargetPort > 0 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(c.Proxy.TargetPort))
	}
	u.Path = ""
	u.RawQuery = ""
	return u, nil
}

// ProxyAddress is the listen address of the development proxy.
func (c *Config) ProxyAddress() string {
	return net.JoinHostPort(c.Proxy.Host, strconv.Itoa(c.Proxy.Port))
}

// ContentAddress is the listen address of the content server.
func (c *Config) ContentAddress() string {
	return net.JoinHostPort(c.Proxy.Host, strconv.Itoa(c.Content.Port))
}

// IsProduction reports whether assets should be built for production.
func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

// InjectPolicy returns the validated inject policy.
func (c *Config) InjectPolicy() pages.InjectPolicy {
	p, err := pages.ParseInjectPolicy(c.Pages.Inject)
	if err != nil {
		return pages.InjectNever
	}
	return p
}
