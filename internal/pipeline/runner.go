package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/themepack/internal/bundle"
	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/logging"
	"github.com/conneroisu/themepack/internal/purge"
	"github.com/conneroisu/themepack/internal/render"
)

// ManifestFile is written into the assets directory after every build.
const ManifestFile = "manifest.json"

const tracerName = "github.com/conneroisu/themepack/internal/pipeline"

// Report summarizes a finished build.
type Report struct {
	Theme string `json:"theme" yaml:"theme"`
	// Files are the generated asset paths relative to the assets directory.
	Files    []string      `json:"files" yaml:"files"`
	Scripts  []string      `json:"scripts" yaml:"scripts"`
	Styles   []string      `json:"styles" yaml:"styles"`
	Pages    []string      `json:"pages" yaml:"pages"`
	Copied   int           `json:"copied" yaml:"copied"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration time.Duration `json:"-" yaml:"-"`
}

// Runner executes build plans.
type Runner struct {
	Logger    logging.Logger
	Bundler   *bundle.Bundler
	Generator *render.Generator
	Metrics   *Metrics
	// Fs receives every build output: bundles, copies, rendered pages and
	// the manifest. The render stage also reads templates through it.
	Fs afero.Fs

	tracer trace.Tracer
}

// NewRunner creates a Runner writing to the OS filesystem. metrics may be nil.
func NewRunner(logger logging.Logger, metrics *Metrics) *Runner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Runner{
		Logger:    logger.WithComponent("pipeline"),
		Bundler:   bundle.New(logger),
		Generator: render.NewGenerator(logger),
		Metrics:   metrics,
		Fs:        afero.NewOsFs(),
		tracer:    otel.Tracer(tracerName),
	}
}

// Run executes plan. A failed stage aborts the build.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Report, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "themepack.build", trace.WithAttributes(
		attribute.String("theme", plan.Theme),
		attribute.String("mode", plan.Mode),
		attribute.Int("pages", len(plan.Pages)),
	))
	defer span.End()

	perf := logging.StartOperation(r.Logger, "build")
	report, err := r.run(ctx, plan)
	elapsed := time.Since(start)

	rendered := 0
	if report != nil {
		report.Duration = elapsed
		rendered = len(report.Pages)
	}
	r.Metrics.observe(err, elapsed, rendered)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		perf.EndWithError(ctx, err)
		return nil, err
	}

	perf.End(ctx,
		"files", len(report.Files),
		"pages", len(report.Pages),
		"copied", report.Copied)
	return report, nil
}

func (r *Runner) run(ctx context.Context, plan *Plan) (*Report, error) {
	report := &Report{Theme: plan.Theme}
	assetsDir := plan.Paths.Assets

	if plan.Clean {
		if err := r.stage(ctx, "clean", func(context.Context) error {
			return cleanDir(r.Fs, assetsDir)
		}); err != nil {
			return nil, err
		}
	}

	var purger *purge.Purger
	if plan.Purge {
		if err := r.stage(ctx, "purge", func(ctx context.Context) error {
			used, err := purge.CollectSelectors(ctx, plan.Paths.Source)
			if err != nil {
				return err
			}
			purger = purge.New(used, plan.Safelist)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	var bundled *bundle.Result
	if err := r.stage(ctx, "bundle", func(ctx context.Context) error {
		opts := plan.Bundle
		opts.Purger = purger
		res, err := r.Bundler.Build(ctx, opts)
		if err != nil {
			return err
		}
		for _, f := range res.Files {
			dst := filepath.Join(assetsDir, filepath.FromSlash(f.Path))
			if err := r.Fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return perrors.NewIOError(perrors.CodeBundle, "failed to create asset directory", err).WithPath(dst)
			}
			if err := afero.WriteFile(r.Fs, dst, f.Contents, 0o644); err != nil {
				return perrors.NewIOError(perrors.CodeBundle, "failed to write asset", err).WithPath(dst)
			}
			report.Files = append(report.Files, f.Path)
		}
		bundled = res
		return nil
	}); err != nil {
		return nil, err
	}
	report.Scripts = bundled.Scripts
	report.Styles = bundled.Styles
	report.Warnings = append(report.Warnings, bundled.Warnings...)

	if len(plan.Copy) > 0 {
		if err := r.stage(ctx, "copy", func(ctx context.Context) error {
			n, err := copyAll(ctx, r.Fs, plan.Copy)
			report.Copied = n
			return err
		}); err != nil {
			return nil, err
		}
	}

	if err := r.stage(ctx, "render", func(ctx context.Context) error {
		gen := *r.Generator
		gen.Fs = r.Fs
		_, err := gen.RenderAll(ctx, plan.Pages, render.Assets{
			Scripts: bundled.Scripts,
			Styles:  bundled.Styles,
		})
		return err
	}); err != nil {
		return nil, err
	}

	for _, page := range plan.Pages {
		rel, err := filepath.Rel(plan.Paths.Output, page.Destination)
		if err != nil {
			rel = page.Destination
		}
		report.Pages = append(report.Pages, filepath.ToSlash(rel))
	}
	sort.Strings(report.Pages)

	if err := r.stage(ctx, "manifest", func(context.Context) error {
		return r.writeManifest(assetsDir, report)
	}); err != nil {
		return nil, err
	}

	return report, nil
}

// stage runs fn inside its own span.
func (r *Runner) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, "themepack.build."+name)
	defer span.End()

	r.Logger.Debug(ctx, "stage started", "stage", name)
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Runner) writeManifest(dir string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return perrors.NewBuildError(perrors.CodeBundle, "failed to encode manifest", err)
	}

	path := filepath.Join(dir, ManifestFile)
	if err := r.Fs.MkdirAll(dir, 0o755); err != nil {
		return perrors.NewIOError(perrors.CodeBundle, "failed to create assets directory", err).WithPath(dir)
	}
	if err := afero.WriteFile(r.Fs, path, append(data, '\n'), 0o644); err != nil {
		return perrors.NewIOError(perrors.CodeBundle, "failed to write manifest", err).WithPath(path)
	}
	return nil
}
