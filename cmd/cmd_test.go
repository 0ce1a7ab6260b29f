package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/pages"
	"github.com/conneroisu/themepack/internal/pipeline"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// newTheme creates <tmp>/themes/demo with a small theme source tree.
func newTheme(t *testing.T) string {
	t.Helper()
	t.Setenv("APP_URL", "http://cms.test")

	dir := filepath.Join(t.TempDir(), "themes", "demo")
	for name, content := range map[string]string{
		"theme.yaml":              "name: Demo\ncode: demo\n",
		"src/index.js":            "import './theme.css';\nconsole.log('demo');\n",
		"src/theme.css":           ".hero { color: red }\n",
		"src/layouts/default.htm": "<html>\n<head></head>\n<body class=\"hero\">{% page %}</body>\n</html>\n",
		"src/pages/home.htm":      "<h1>Home</h1>\n",
	} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "themepack "), out)

	out, _, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	_, _, err = execute(t, "version", "--format", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestPagesCommand(t *testing.T) {
	dir := newTheme(t)

	out, _, err := execute(t, "--theme", dir, "pages", "--inject", "layouts", "-o", "json")
	require.NoError(t, err)

	var descriptors []pages.PageDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &descriptors))
	require.Len(t, descriptors, 2)

	assert.Equal(t, filepath.Join(dir, "layouts", "default.htm"), descriptors[0].Destination)
	assert.Equal(t, filepath.Join(dir, "src", "layouts", "default.htm"), descriptors[0].Source)
	assert.True(t, descriptors[0].InjectIntoOutput)
	assert.Equal(t, filepath.Join(dir, "pages", "home.htm"), descriptors[1].Destination)
	assert.False(t, descriptors[1].InjectIntoOutput)

	out, _, err = execute(t, "--theme", dir, "pages")
	require.NoError(t, err)
	assert.Contains(t, out, "Destination")
	assert.Contains(t, out, "layouts/default.htm")
	assert.Contains(t, out, "2 templates in theme demo")

	out, _, err = execute(t, "--theme", dir, "pages", "-o", "yaml")
	require.NoError(t, err)
	var fromYAML []pages.PageDescriptor
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Len(t, fromYAML, 2)

	_, _, err = execute(t, "--theme", dir, "pages", "-o", "csv")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestPagesCommandRejectsUnknownPolicy(t *testing.T) {
	dir := newTheme(t)
	_, _, err := execute(t, "--theme", dir, "pages", "--inject", "sometimes")
	assert.ErrorContains(t, err, "unknown inject policy")
}

func TestBuildCommand(t *testing.T) {
	dir := newTheme(t)

	out, _, err := execute(t, "--theme", dir, "build", "--inject", "layouts", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Built theme demo")
	assert.Contains(t, out, "pages:  2")

	layout, err := os.ReadFile(filepath.Join(dir, "layouts", "default.htm"))
	require.NoError(t, err)
	assert.Contains(t, string(layout), `<script src="http://cms.test/themes/demo/assets/javascript/theme-`)
	assert.Contains(t, string(layout), `<link href="http://cms.test/themes/demo/assets/css/theme-`)

	home, err := os.ReadFile(filepath.Join(dir, "pages", "home.htm"))
	require.NoError(t, err)
	assert.NotContains(t, string(home), "<script")

	data, err := os.ReadFile(filepath.Join(dir, "assets", pipeline.ManifestFile))
	require.NoError(t, err)
	var report pipeline.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "demo", report.Theme)
	assert.Len(t, report.Scripts, 1)
}

func TestBuildCommandNoClean(t *testing.T) {
	dir := newTheme(t)
	stale := filepath.Join(dir, "assets", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	_, _, err := execute(t, "--theme", dir, "build", "--no-clean", "--log-level", "error")
	require.NoError(t, err)
	assert.FileExists(t, stale)

	_, _, err = execute(t, "--theme", dir, "build", "--log-level", "error")
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestConfigCommand(t *testing.T) {
	dir := newTheme(t)
	cfgPath := filepath.Join(t.TempDir(), "themepack.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("mode: production\npages:\n  inject: content\n"), 0o644))

	out, _, err := execute(t, "--config", cfgPath, "--theme", dir, "config")
	require.NoError(t, err)

	var resolved struct {
		Config struct {
			Mode  string `yaml:"mode"`
			Pages struct {
				Inject string `yaml:"inject"`
			} `yaml:"pages"`
			Theme struct {
				Name string `yaml:"name"`
			} `yaml:"theme"`
		} `yaml:"config"`
		Paths struct {
			PublicPath string `yaml:"public_path"`
		} `yaml:"paths"`
		File string `yaml:"file"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &resolved))
	assert.Equal(t, "production", resolved.Config.Mode)
	assert.Equal(t, "content", resolved.Config.Pages.Inject)
	assert.Equal(t, "Demo", resolved.Config.Theme.Name)
	assert.Equal(t, "http://cms.test/themes/demo/assets/", resolved.Paths.PublicPath)
	assert.Equal(t, cfgPath, resolved.File)
}

func TestConfigFromEnvironment(t *testing.T) {
	dir := newTheme(t)
	cfgPath := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("pages:\n  inject: layouts\n"), 0o644))

	t.Setenv("THEMEPACK_CONFIG_FILE", cfgPath)
	t.Setenv("THEMEPACK_MODE", "production")

	out, _, err := execute(t, "--theme", dir, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "mode: production")
	assert.Contains(t, out, "inject: layouts")
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	dir := newTheme(t)
	_, _, err := execute(t, "--config", filepath.Join(dir, "missing.yml"), "--theme", dir, "config")
	require.Error(t, err)
	assert.True(t, perrors.IsConfigError(err))
}

func TestInvalidModeIsRejected(t *testing.T) {
	dir := newTheme(t)
	_, _, err := execute(t, "--theme", dir, "build", "--mode", "staging")
	require.Error(t, err)
	assert.True(t, perrors.HasCode(err, perrors.CodeConfigInvalid))
}

func TestInvalidLogFormat(t *testing.T) {
	dir := newTheme(t)
	_, _, err := execute(t, "--theme", dir, "--log-format", "xml", "pages")
	assert.ErrorContains(t, err, "unsupported log format")
}

func TestPublishRequiresBucket(t *testing.T) {
	dir := newTheme(t)
	_, _, err := execute(t, "--theme", dir, "publish")
	require.Error(t, err)
	assert.True(t, perrors.HasCode(err, perrors.CodePublish))
}
