package config

import (
	"bytes"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	perrors "github.com/conneroisu/themepack/internal/errors"
)

// ThemeManifest is the file the CMS reads theme metadata from.
const ThemeManifest = "theme.yaml"

// Theme is the metadata from theme.yaml.
type Theme struct {
	Title       string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
	Homepage    string `yaml:"homepage,omitempty"`
	Code        string `yaml:"code,omitempty"`

	// dir is the theme directory the manifest was found in.
	dir string
}

// Name is the theme's code, which the CMS uses in asset URLs. Themes without
// an explicit code are addressed by their directory name.
func (t Theme) Name() string {
	if t.Code != "" {
		return t.Code
	}
	return filepath.Base(t.dir)
}

// LoadTheme reads theme.yaml from dir. A missing manifest is not an error;
// the theme is then named after its directory.
func LoadTheme(dir string) (*Theme, error) {
	theme := &Theme{dir: dir}

	path := filepath.Join(dir, ThemeManifest)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return theme, nil
	}
	if err != nil {
		return nil, perrors.NewConfigError(perrors.CodeThemeManifest, "failed to read theme manifest", err).WithPath(path)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return theme, nil
	}

	if err := yaml.Unmarshal(data, theme); err != nil {
		return nil, perrors.NewConfigError(perrors.CodeThemeManifest, "failed to parse theme manifest", err).WithPath(path)
	}

	return theme, nil
}
