// Package render generates theme pages from their templates.
//
// Templates are copied to their destination, with asset tags injected and
// whitespace collapsed when the page descriptor asks for it. Only HTML
// outputs are ever rewritten; other templates (.txt) are copied verbatim.
package render

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/logging"
	"github.com/conneroisu/themepack/internal/pages"
)

// Generator renders page descriptors.
type Generator struct {
	Logger logging.Logger
	// Concurrency bounds the number of pages rendered at once.
	Concurrency int
	// Fs holds both the templates and the generated pages.
	Fs afero.Fs
}

// NewGenerator creates a Generator.
func NewGenerator(logger logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Generator{
		Logger:      logger.WithComponent("render"),
		Concurrency: runtime.NumCPU(),
		Fs:          afero.NewOsFs(),
	}
}

// IsHTML reports whether path names an HTML output.
func IsHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".htm", ".html":
		return true
	}
	return false
}

// Render generates one page.
func (g *Generator) Render(ctx context.Context, page pages.PageDescriptor, assets Assets) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fsys := g.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	src, err := afero.ReadFile(fsys, page.Source)
	if err != nil {
		return perrors.NewIOError(perrors.CodeRender, "failed to read template", err).WithPath(page.Source)
	}

	out := src
	if IsHTML(page.Destination) {
		if page.InjectIntoOutput {
			out = Inject(out, assets)
		}
		if page.Minify {
			if out, err = Minify(out); err != nil {
				return perrors.NewBuildError(perrors.CodeRender, "failed to minify page", err).WithPath(page.Source)
			}
		}
	}

	if err := fsys.MkdirAll(filepath.Dir(page.Destination), 0o755); err != nil {
		return perrors.NewIOError(perrors.CodeRender, "failed to create output directory", err).WithPath(page.Destination)
	}
	if err := afero.WriteFile(fsys, page.Destination, out, 0o644); err != nil {
		return perrors.NewIOError(perrors.CodeRender, "failed to write page", err).WithPath(page.Destination)
	}

	g.Logger.Debug(ctx, "rendered page",
		"source", page.Source,
		"destination", page.Destination,
		"inject", page.InjectIntoOutput)
	return nil
}

// RenderAll renders every page concurrently and stops at the first error.
// It returns the number of pages written.
func (g *Generator) RenderAll(ctx context.Context, all []pages.PageDescriptor, assets Assets) (int, error) {
	eg, gctx := errgroup.WithContext(ctx)
	limit := g.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	eg.SetLimit(limit)

	var rendered atomic.Int64
	for _, page := range all {
		page := page
		eg.Go(func() error {
			if err := g.Render(gctx, page, assets); err != nil {
				return err
			}
			rendered.Add(1)
			return nil
		})
	}

	err := eg.Wait()
	return int(rendered.Load()), err
}
