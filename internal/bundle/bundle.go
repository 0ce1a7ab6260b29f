// Package bundle compiles the theme's JavaScript entry point and the
// stylesheets it imports into hashed asset files using esbuild.
//
// Output is kept in memory (Write is off) so the pipeline decides where and
// when files land on disk. Stylesheets are extracted next to the script,
// fonts and images referenced from CSS or JS are relocated into their own
// directories under their original names.
package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/logging"
	"github.com/conneroisu/themepack/internal/purge"
)

// entryName is the esbuild output name of the entry point before hashing.
const entryName = "theme"

// hashLength is the number of hex digits substituted for "[hash]".
const hashLength = 20

// Options configures one bundle run.
type Options struct {
	// Entry is the absolute path of the JavaScript entry point.
	Entry string
	// SourceDir is the theme source root; import paths resolve against it.
	SourceDir string
	// OutDir is the assets directory output paths are relative to.
	OutDir string
	// PublicPath prefixes every asset URL.
	PublicPath string
	// JSName and CSSName are output name patterns; "[hash]" is replaced
	// with a content hash.
	JSName  string
	CSSName string
	// FontsDir and ImagesDir receive relocated url() and import assets.
	FontsDir  string
	ImagesDir string
	// Target is the language level, e.g. "es2017".
	Target string
	Minify bool
	// Purger, when set, strips unused rules from every stylesheet.
	Purger *purge.Purger
}

// OutputFile is one generated asset.
type OutputFile struct {
	// Path is relative to OutDir, slash separated.
	Path     string `json:"path"`
	Contents []byte `json:"-"`
}

// Result is the in-memory output of a bundle run.
type Result struct {
	Files []OutputFile
	// Scripts and Styles are the public URLs of the entry outputs.
	Scripts  []string
	Styles   []string
	Warnings []string
}

// Bundler runs esbuild builds.
type Bundler struct {
	Logger logging.Logger
}

// New creates a Bundler.
func New(logger logging.Logger) *Bundler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Bundler{Logger: logger.WithComponent("bundle")}
}

// Build bundles opts.Entry. A missing entry point is not an error: the
// run is skipped and an empty Result returned.
func (b *Bundler) Build(ctx context.Context, opts Options) (*Result, error) {
	if _, err := os.Stat(opts.Entry); errors.Is(err, fs.ErrNotExist) {
		b.Logger.Warn(ctx, err, "entry point not found, skipping bundle", "entry", opts.Entry)
		return &Result{}, nil
	}

	target, err := parseTarget(opts.Target)
	if err != nil {
		return nil, err
	}

	assets := newAssetRelocator(opts)
	plugins := []api.Plugin{assets.plugin()}
	if opts.Purger != nil {
		plugins = append(plugins, purgePlugin(opts.Purger))
	}

	buildOpts := api.BuildOptions{
		EntryPointsAdvanced: []api.EntryPoint{{InputPath: opts.Entry, OutputPath: entryName}},
		Outdir:              opts.OutDir,
		AbsWorkingDir:       opts.SourceDir,
		Bundle:              true,
		Write:               false,
		Platform:            api.PlatformBrowser,
		Format:              api.FormatIIFE,
		Target:              target,
		PublicPath:          strings.TrimRight(opts.PublicPath, "/"),
		AssetNames:          path.Join(opts.ImagesDir, "[name]"),
		Loader:              loaders(),
		MinifyWhitespace:    opts.Minify,
		MinifyIdentifiers:   opts.Minify,
		MinifySyntax:        opts.Minify,
		LogLevel:            api.LogLevelSilent,
		Plugins:             plugins,
	}

	esctx, cerr := api.Context(buildOpts)
	if cerr != nil {
		return nil, messagesError(cerr.Errors)
	}
	defer esctx.Dispose()

	done := make(chan api.BuildResult, 1)
	go func() { done <- esctx.Rebuild() }()

	var res api.BuildResult
	select {
	case res = <-done:
	case <-ctx.Done():
		esctx.Cancel()
		<-done
		return nil, ctx.Err()
	}

	if len(res.Errors) > 0 {
		return nil, messagesError(res.Errors)
	}

	result := &Result{}
	for _, w := range res.Warnings {
		msg := formatMessage(w)
		result.Warnings = append(result.Warnings, msg)
		b.Logger.Warn(ctx, nil, "bundler warning", "message", msg)
	}

	if err := b.collect(result, res.OutputFiles, opts); err != nil {
		return nil, err
	}
	if err := assets.emit(result); err != nil {
		return nil, err
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].Path < result.Files[j].Path
	})

	b.Logger.Info(ctx, "bundled assets",
		"files", len(result.Files),
		"scripts", len(result.Scripts),
		"styles", len(result.Styles))

	return result, nil
}

// collect renames the entry outputs to their hashed names and records
// their public URLs.
func (b *Bundler) collect(result *Result, outputs []api.OutputFile, opts Options) error {
	for _, f := range outputs {
		rel, err := filepath.Rel(opts.OutDir, f.Path)
		if err != nil {
			return perrors.NewBuildError(perrors.CodeBundle, "output outside assets directory", err).WithPath(f.Path)
		}
		rel = filepath.ToSlash(rel)

		switch rel {
		case entryName + ".js":
			rel = HashedName(opts.JSName, f.Contents)
			result.Scripts = append(result.Scripts, opts.PublicPath+rel)
		case entryName + ".css":
			rel = HashedName(opts.CSSName, f.Contents)
			result.Styles = append(result.Styles, opts.PublicPath+rel)
		}

		result.Files = append(result.Files, OutputFile{Path: rel, Contents: f.Contents})
	}
	return nil
}

// HashedName replaces every "[hash]" in pattern with a hash of contents.
func HashedName(pattern string, contents []byte) string {
	sum := sha256.Sum256(contents)
	return strings.ReplaceAll(pattern, "[hash]", hex.EncodeToString(sum[:])[:hashLength])
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func parseTarget(s string) (api.Target, error) {
	if s == "" {
		return api.ES2017, nil
	}
	t, ok := targets[strings.ToLower(s)]
	if !ok {
		return api.DefaultTarget, perrors.NewConfigError(perrors.CodeConfigInvalid,
			fmt.Sprintf("unknown bundle target %q", s), nil)
	}
	return t, nil
}

// scriptExtensions are the module types esbuild resolves without a loader.
var scriptExtensions = []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx", ".json"}

// SourceExtensions lists the file types a bundle can read, dot included.
func SourceExtensions() []string {
	exts := append([]string{".css"}, scriptExtensions...)
	for ext := range fontExtensions {
		exts = append(exts, ext)
	}
	for ext := range imageExtensions {
		if !fontExtensions[ext] {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

func loaders() map[string]api.Loader {
	m := map[string]api.Loader{".css": api.LoaderCSS}
	for ext := range fontExtensions {
		m[ext] = api.LoaderFile
	}
	for ext := range imageExtensions {
		m[ext] = api.LoaderFile
	}
	return m
}

func messagesError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, m := range msgs {
		errs = append(errs, errors.New(formatMessage(m)))
	}
	return perrors.NewBuildError(perrors.CodeBundle,
		fmt.Sprintf("bundling failed with %d error(s)", len(msgs)), errors.Join(errs...))
}

func formatMessage(m api.Message) string {
	text := m.Text
	if m.PluginName != "" {
		text = "[" + m.PluginName + "] " + text
	}
	if m.Location == nil {
		return text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, text)
}
