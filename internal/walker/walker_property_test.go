//go:build property
// +build property

package walker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// treeFile is one generated file: a directory chain plus a file extension.
type treeFile struct {
	Dirs []string
	Ext  string
}

func genTreeFile() gopter.Gen {
	return gopter.CombineGens(
		gen.SliceOfN(3, gen.OneConstOf("layouts", "partials", "pages", "Layouts", "content")),
		gen.IntRange(0, 3),
		gen.OneConstOf("html", "htm", "txt", "js", "css", "HTML"),
	).Map(func(values []interface{}) treeFile {
		dirs := values[0].([]string)
		depth := values[1].(int)
		return treeFile{Dirs: dirs[:depth], Ext: values[2].(string)}
	})
}

// materialize writes the generated files and returns how many should match
// and how many of those are layouts.
func materialize(root string, files []treeFile, accepted map[string]bool) (int, int, error) {
	matching, layouts := 0, 0
	for i, f := range files {
		dir := filepath.Join(append([]string{root}, f.Dirs...)...)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, 0, err
		}
		name := filepath.Join(dir, fmt.Sprintf("file%d.%s", i, f.Ext))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			return 0, 0, err
		}
		if accepted[f.Ext] {
			matching++
			if len(f.Dirs) > 0 && f.Dirs[len(f.Dirs)-1] == LayoutsDir {
				layouts++
			}
		}
	}
	return matching, layouts, nil
}

// TestWalkerProperties tests invariant properties of the directory walker
func TestWalkerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	accepted := map[string]bool{"html": true, "htm": true, "txt": true}

	properties.Property("exactly one match per accepted file", prop.ForAll(
		func(files []treeFile) bool {
			root, err := os.MkdirTemp("", "walker-prop-*")
			if err != nil {
				return false
			}
			defer os.RemoveAll(root)

			want, _, err := materialize(root, files, accepted)
			if err != nil {
				return false
			}

			matches, err := Walk(context.Background(), root, DefaultExtensions)
			if err != nil {
				return false
			}

			seen := make(map[string]bool, len(matches))
			for _, m := range matches {
				if seen[m.OutputPath] || !accepted[extension(m.TemplatePath)] {
					return false
				}
				seen[m.OutputPath] = true
			}
			return len(matches) == want
		},
		gen.SliceOf(genTreeFile()),
	))

	properties.Property("layout iff parent is exactly layouts", prop.ForAll(
		func(files []treeFile) bool {
			root, err := os.MkdirTemp("", "walker-prop-*")
			if err != nil {
				return false
			}
			defer os.RemoveAll(root)

			_, wantLayouts, err := materialize(root, files, accepted)
			if err != nil {
				return false
			}

			matches, err := Walk(context.Background(), root, DefaultExtensions)
			if err != nil {
				return false
			}

			layouts := 0
			for _, m := range matches {
				parent := filepath.Base(filepath.Dir(m.TemplatePath))
				if m.IsLayout != (parent == "layouts") {
					return false
				}
				if m.IsLayout {
					layouts++
				}
			}
			return layouts == wantLayouts
		},
		gen.SliceOf(genTreeFile()),
	))

	properties.Property("output path joins back to the template path", prop.ForAll(
		func(files []treeFile) bool {
			root, err := os.MkdirTemp("", "walker-prop-*")
			if err != nil {
				return false
			}
			defer os.RemoveAll(root)

			if _, _, err := materialize(root, files, accepted); err != nil {
				return false
			}

			matches, err := Walk(context.Background(), root, DefaultExtensions)
			if err != nil {
				return false
			}

			for _, m := range matches {
				if filepath.Join(root, filepath.FromSlash(m.OutputPath)) != m.TemplatePath {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genTreeFile()),
	))

	properties.TestingRun(t)
}
