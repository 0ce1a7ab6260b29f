package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/pages"
)

// newThemeProject lays out <project>/.env and <project>/themes/<name>/.
func newThemeProject(t *testing.T, name, envContent string) string {
	t.Helper()
	project := t.TempDir()
	themeDir := filepath.Join(project, "themes", name)
	require.NoError(t, os.MkdirAll(filepath.Join(themeDir, "src"), 0o755))
	if envContent != "" {
		require.NoError(t, os.WriteFile(filepath.Join(project, ".env"), []byte(envContent), 0o644))
	}
	return themeDir
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_URL", "")
	themeDir := newThemeProject(t, "demo", "APP_URL=http://cms.test\nDB_HOST=localhost\n")

	v := viper.New()
	v.Set("theme_dir", themeDir)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.Equal(t, []string{"htm", "html", "txt"}, cfg.Pages.Extensions)
	assert.Equal(t, pages.InjectNever, cfg.InjectPolicy())
	assert.True(t, cfg.Pages.Minify)
	assert.True(t, cfg.Clean)
	assert.True(t, cfg.Purge.Enabled)
	assert.Equal(t, "javascript/theme-[hash].js", cfg.Assets.JSName)
	assert.Equal(t, "css/theme-[hash].css", cfg.Assets.CSSName)
	assert.Equal(t, 3000, cfg.Proxy.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Proxy.Debounce)
	assert.Equal(t, 9000, cfg.Content.Port)
	assert.True(t, cfg.Content.Compress)

	assert.Equal(t, "http://cms.test", cfg.AppURL)
	assert.Equal(t, "demo", cfg.Theme.Name())
}

func TestPathsDerivation(t *testing.T) {
	t.Setenv("APP_URL", "")
	themeDir := newThemeProject(t, "demo", "APP_URL=http://cms.test/\n")

	v := viper.New()
	v.Set("theme_dir", themeDir)
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	p := cfg.Paths()
	assert.Equal(t, themeDir, p.Theme)
	assert.Equal(t, filepath.Join(themeDir, "src"), p.Source)
	assert.Equal(t, themeDir, p.Output)
	assert.Equal(t, filepath.Join(themeDir, "assets"), p.Assets)
	assert.Equal(t, filepath.Join(themeDir, "src", "index.js"), p.Entry)
	assert.Equal(t, "http://cms.test/themes/demo/assets/", p.PublicPath)
	assert.Equal(t, "http://cms.test:80", p.ProxyTarget)
	assert.Equal(t, "localhost:3000", cfg.ProxyAddress())
	assert.Equal(t, "localhost:9000", cfg.ContentAddress())
}

func TestProcessEnvOverridesDotEnv(t *testing.T) {
	themeDir := newThemeProject(t, "demo", "APP_URL=http://from-dotenv.test\n")
	t.Setenv("APP_URL", "https://from-env.test:8443")

	v := viper.New()
	v.Set("theme_dir", themeDir)
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.test:8443", cfg.AppURL)
	target, err := cfg.ProxyTarget()
	require.NoError(t, err)
	assert.Equal(t, "from-env.test:8443", target.Host, "an explicit port wins over target_port")
}

func TestMissingDotEnvIsNotAnError(t *testing.T) {
	t.Setenv("APP_URL", "")
	themeDir := newThemeProject(t, "demo", "")

	v := viper.New()
	v.Set("theme_dir", themeDir)
	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.AppURL)

	_, err = cfg.ProxyTarget()
	assert.True(t, perrors.IsConfigError(err))
	assert.Equal(t, "/themes/demo/assets/", cfg.PublicPath())
}

func TestThemeManifestCode(t *testing.T) {
	t.Setenv("APP_URL", "http://cms.test")
	themeDir := newThemeProject(t, "folder-name", "")
	manifest := "name: Demo Theme\ndescription: A demo\nauthor: Someone\ncode: demo-code\n"
	require.NoError(t, os.WriteFile(filepath.Join(themeDir, ThemeManifest), []byte(manifest), 0o644))

	v := viper.New()
	v.Set("theme_dir", themeDir)
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "Demo Theme", cfg.Theme.Title)
	assert.Equal(t, "demo-code", cfg.Theme.Name())
	assert.Equal(t, "http://cms.test/themes/demo-code/assets/", cfg.PublicPath())
}

func TestThemeManifestInvalid(t *testing.T) {
	themeDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(themeDir, ThemeManifest), []byte("name: [unterminated\n"), 0o644))

	_, err := LoadTheme(themeDir)
	require.Error(t, err)
	assert.True(t, perrors.HasCode(err, perrors.CodeThemeManifest))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		require.NoError(t, v.Unmarshal(&cfg))
		return &cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "staging" }},
		{"no extensions", func(c *Config) { c.Pages.Extensions = nil }},
		{"extension with separator", func(c *Config) { c.Pages.Extensions = []string{"html/x"} }},
		{"unknown inject policy", func(c *Config) { c.Pages.Inject = "maybe" }},
		{"proxy port out of range", func(c *Config) { c.Proxy.Port = 70000 }},
		{"negative content port", func(c *Config) { c.Content.Port = -1 }},
		{"empty entry", func(c *Config) { c.Assets.Entry = "" }},
		{"absolute js name", func(c *Config) { c.Assets.JSName = "/tmp/x.js" }},
		{"css name escaping assets", func(c *Config) { c.Assets.CSSName = "../x.css" }},
		{"copy without from", func(c *Config) { c.Copy = []CopyConfig{{To: "static"}} }},
		{"copy traversal", func(c *Config) { c.Copy = []CopyConfig{{From: "../../etc"}} }},
		{"relative app url", func(c *Config) { c.AppURL = "cms.test" }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, perrors.IsConfigError(err))
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("APP_URL=http://cms.test\nAPP_DEBUG=true\n"), 0o644))

	values, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "http://cms.test", values["app_url"])
	assert.Equal(t, "true", values["app_debug"])

	values, err = LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestExtensionsFromCommaSeparatedEnv(t *testing.T) {
	t.Setenv("APP_URL", "")
	themeDir := newThemeProject(t, "demo", "")

	v := viper.New()
	v.Set("theme_dir", themeDir)
	v.Set("pages.extensions", "html,htm")
	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"html", "htm"}, cfg.Pages.Extensions)
}
