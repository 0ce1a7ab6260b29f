// Package pipeline assembles and runs theme builds.
//
// NewPlan turns a loaded configuration into an explicit Plan: the derived
// paths, one page descriptor per discovered template, the bundle options
// and the copy list. Runner.Run executes a Plan stage by stage (clean,
// purge collection, bundle, copy, render, manifest), recording metrics and
// a trace span per stage.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/conneroisu/themepack/internal/bundle"
	"github.com/conneroisu/themepack/internal/config"
	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/logging"
	"github.com/conneroisu/themepack/internal/pages"
	"github.com/conneroisu/themepack/internal/walker"
)

// CopySpec copies From (a file or directory) to To. Both are absolute.
type CopySpec struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Plan is everything one build needs, resolved up front.
type Plan struct {
	Theme string       `json:"theme" yaml:"theme"`
	Mode  string       `json:"mode" yaml:"mode"`
	Paths config.Paths `json:"paths" yaml:"paths"`

	Pages  []pages.PageDescriptor `json:"pages" yaml:"pages"`
	Bundle bundle.Options         `json:"-" yaml:"-"`
	Copy   []CopySpec             `json:"copy,omitempty" yaml:"copy,omitempty"`

	Clean    bool     `json:"clean" yaml:"clean"`
	Purge    bool     `json:"purge" yaml:"purge"`
	Safelist []string `json:"safelist,omitempty" yaml:"safelist,omitempty"`

	// Skipped lists entries the walker could not stat.
	Skipped []error `json:"-" yaml:"-"`
}

// NewPlan discovers the theme's templates and derives a Plan from cfg.
func NewPlan(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Plan, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	paths := cfg.Paths()

	info, err := os.Stat(paths.Source)
	if err != nil {
		return nil, perrors.NewIOError(perrors.CodeListDir, "theme source directory not found", err).WithPath(paths.Source)
	}
	if !info.IsDir() {
		return nil, perrors.NewValidationError(perrors.CodeListDir, "theme source is not a directory").WithPath(paths.Source)
	}

	w := walker.New(paths.Source, logger)
	matches, err := w.Walk(ctx, paths.Source, cfg.Pages.Extensions)
	if err != nil {
		return nil, err
	}

	descs, err := pages.Build(matches, pages.Options{
		OutputRoot: paths.Output,
		Policy:     cfg.InjectPolicy(),
		Minify:     cfg.Pages.Minify,
	})
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Theme: cfg.Theme.Name(),
		Mode:  cfg.Mode,
		Paths: paths,
		Pages: descs,
		Bundle: bundle.Options{
			Entry:      paths.Entry,
			SourceDir:  paths.Source,
			OutDir:     paths.Assets,
			PublicPath: paths.PublicPath,
			JSName:     cfg.Assets.JSName,
			CSSName:    cfg.Assets.CSSName,
			FontsDir:   cfg.Assets.FontsDir,
			ImagesDir:  cfg.Assets.ImagesDir,
			Target:     cfg.Assets.Target,
			Minify:     cfg.IsProduction() || cfg.Assets.Minify,
		},
		Clean:    cfg.Clean,
		Purge:    cfg.Purge.Enabled,
		Safelist: cfg.Purge.Safelist,
		Skipped:  w.Skipped.Errors(),
	}

	for _, cp := range cfg.Copy {
		plan.Copy = append(plan.Copy, CopySpec{
			From: filepath.Join(paths.Source, filepath.FromSlash(cp.From)),
			To:   filepath.Join(paths.Assets, filepath.FromSlash(cp.To)),
		})
	}

	logger.Info(ctx, "build plan ready",
		"theme", plan.Theme,
		"pages", len(plan.Pages),
		"skipped", len(plan.Skipped))

	return plan, nil
}
