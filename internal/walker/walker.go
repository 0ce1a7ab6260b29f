// Package walker discovers page templates in a theme source tree.
//
// A Walker lists a directory, recurses into its subdirectories concurrently
// and returns one FileMatch per file whose extension is accepted. Each
// directory level joins its sub-traversals with an errgroup, so a level
// completes exactly once, after every entry has been accounted for, and a
// listing failure anywhere below surfaces to the top-level caller with no
// partial result.
package walker

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/logging"
)

// LayoutsDir is the parent directory name that marks a template as a layout.
const LayoutsDir = "layouts"

// DefaultExtensions are the template extensions discovered when none are configured.
var DefaultExtensions = []string{"htm", "html", "txt"}

// FileMatch is a discovered template plus its computed output path and
// layout classification.
type FileMatch struct {
	// OutputPath is the file path relative to the source root, slash separated.
	OutputPath string `json:"output_path" yaml:"output_path"`
	// TemplatePath is the absolute path of the template file.
	TemplatePath string `json:"template_path" yaml:"template_path"`
	// IsLayout is true iff the file sits directly under a "layouts" directory.
	IsLayout bool `json:"is_layout" yaml:"is_layout"`
}

// Walker walks theme source directories.
type Walker struct {
	// Root is the fixed source root OutputPath is computed against. When
	// empty, the directory passed to Walk is used.
	Root string
	// Concurrency bounds the number of directories listed at once.
	Concurrency int
	// Logger receives a warning for every entry that could not be stat'ed.
	Logger logging.Logger
	// Skipped, when set, records the stat errors of the entries the last
	// Walk skipped. It is cleared when a Walk starts.
	Skipped *perrors.Collector
}

// New creates a Walker rooted at root.
func New(root string, logger logging.Logger) *Walker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Walker{
		Root:        root,
		Concurrency: runtime.NumCPU(),
		Logger:      logger.WithComponent("walker"),
		Skipped:     perrors.NewCollector(),
	}
}

// Walk lists dir recursively and returns a match for every file whose
// extension is in extensions. Extensions are case-sensitive and given
// without the leading dot. The order of the result is unspecified.
func Walk(ctx context.Context, dir string, extensions []string) ([]FileMatch, error) {
	return New("", nil).Walk(ctx, dir, extensions)
}

// traversal holds the state shared by every level of one Walk call.
type traversal struct {
	walker     *Walker
	root       string
	extensions map[string]struct{}
	sem        chan struct{}
	logger     logging.Logger
}

// Walk lists dir recursively; see the package-level Walk.
func (w *Walker) Walk(ctx context.Context, dir string, extensions []string) ([]FileMatch, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, perrors.NewIOError(perrors.CodeListDir, "failed to resolve directory", err).WithPath(dir)
	}

	root := absDir
	if w.Root != "" {
		if root, err = filepath.Abs(w.Root); err != nil {
			return nil, perrors.NewIOError(perrors.CodeListDir, "failed to resolve source root", err).WithPath(w.Root)
		}
	}

	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	logger := w.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	t := &traversal{
		walker:     w,
		root:       root,
		extensions: extensionSet(extensions),
		sem:        make(chan struct{}, concurrency),
		logger:     logger,
	}

	if w.Skipped != nil {
		w.Skipped.Clear()
	}

	matches, err := t.walkDir(ctx, absDir, nil)
	if err != nil {
		return nil, err
	}

	return matches, nil
}

// walkDir handles one directory level. The level's accumulator is only
// touched under mu, and the level returns once g.Wait has joined every
// subdirectory traversal it started. ancestors holds the resolved paths of
// the directories above dir.
func (t *traversal) walkDir(ctx context.Context, dir string, ancestors []string) ([]FileMatch, error) {
	chain, ok := enter(dir, ancestors)
	if !ok {
		t.logger.Debug(ctx, "skipping symlink cycle", "dir", dir)
		return []FileMatch{}, nil
	}

	entries, err := t.list(ctx, dir)
	if err != nil {
		return nil, err
	}

	results := make([]FileMatch, 0, len(entries))
	if len(entries) == 0 {
		return results, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		info, err := os.Stat(path)
		if err != nil {
			t.skip(ctx, path, err)
			continue
		}

		if info.IsDir() {
			g.Go(func() error {
				sub, err := t.walkDir(gctx, path, chain)
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, sub...)
				mu.Unlock()
				return nil
			})
			continue
		}

		if _, ok := t.extensions[extension(path)]; !ok {
			continue
		}

		match, err := t.match(path)
		if err != nil {
			t.skip(ctx, path, err)
			continue
		}

		mu.Lock()
		results = append(results, match)
		mu.Unlock()
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (t *traversal) list(ctx context.Context, dir string) ([]os.DirEntry, error) {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.sem }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, perrors.NewIOError(perrors.CodeListDir, "failed to list directory", err).WithPath(dir)
	}

	t.logger.Debug(ctx, "listed directory", "dir", dir, "entries", len(entries))
	return entries, nil
}

func (t *traversal) match(path string) (FileMatch, error) {
	rel, err := filepath.Rel(t.root, path)
	if err != nil {
		return FileMatch{}, err
	}

	return FileMatch{
		OutputPath:   filepath.ToSlash(rel),
		TemplatePath: path,
		IsLayout:     IsLayoutPath(path),
	}, nil
}

// enter reports whether dir may be walked and returns the ancestor chain
// for its children. A directory whose resolved path is one of its own
// ancestors closes a symlink cycle. Aliases of a directory outside the
// chain are walked again under their own path.
func enter(dir string, ancestors []string) ([]string, bool) {
	key := dir
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		key = resolved
	}

	for _, a := range ancestors {
		if a == key {
			return nil, false
		}
	}

	chain := make([]string, len(ancestors), len(ancestors)+1)
	copy(chain, ancestors)
	return append(chain, key), true
}

func (t *traversal) skip(ctx context.Context, path string, err error) {
	t.logger.Warn(ctx, err, "skipping entry that could not be stat'ed", "path", path)
	if t.walker.Skipped != nil {
		t.walker.Skipped.Add(perrors.NewIOError(perrors.CodeStat, "entry skipped", err).WithPath(path))
	}
}

// IsLayoutPath reports whether the immediate parent directory of path is
// named exactly "layouts".
func IsLayoutPath(path string) bool {
	return filepath.Base(filepath.Dir(path)) == LayoutsDir
}

// extension returns the file extension without its dot. A leading dot on
// the base name does not start an extension, so ".htaccess" has none.
func extension(path string) string {
	base := filepath.Base(path)
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 {
		return ""
	}
	return base[idx+1:]
}

func extensionSet(extensions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.TrimPrefix(ext, ".")] = struct{}{}
	}
	return set
}
