package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	perrors "github.com/conneroisu/themepack/internal/errors"
)

// copyAll copies every spec and returns the number of files written.
func copyAll(ctx context.Context, fsys afero.Fs, specs []CopySpec) (int, error) {
	total := 0
	for _, spec := range specs {
		n, err := copyPath(ctx, fsys, spec.From, spec.To)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// copyPath copies a file to to, or a directory tree into to.
func copyPath(ctx context.Context, fsys afero.Fs, from, to string) (int, error) {
	info, err := fsys.Stat(from)
	if err != nil {
		return 0, perrors.NewIOError(perrors.CodeCopy, "copy source not found", err).WithPath(from)
	}
	if !info.IsDir() {
		if err := copyFile(fsys, from, to, info.Mode()); err != nil {
			return 0, err
		}
		return 1, nil
	}

	copied := 0
	err = afero.Walk(fsys, from, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return perrors.NewIOError(perrors.CodeCopy, "failed to walk copy source", err).WithPath(path)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(to, rel)

		if info.IsDir() {
			if err := fsys.MkdirAll(dst, 0o755); err != nil {
				return perrors.NewIOError(perrors.CodeCopy, "failed to create directory", err).WithPath(dst)
			}
			return nil
		}
		if err := copyFile(fsys, path, dst, info.Mode()); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, err
}

func copyFile(fsys afero.Fs, from, to string, mode os.FileMode) error {
	src, err := fsys.Open(from)
	if err != nil {
		return perrors.NewIOError(perrors.CodeCopy, "failed to open file", err).WithPath(from)
	}
	defer src.Close()

	if err := fsys.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return perrors.NewIOError(perrors.CodeCopy, "failed to create directory", err).WithPath(to)
	}

	dst, err := fsys.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return perrors.NewIOError(perrors.CodeCopy, "failed to create file", err).WithPath(to)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return perrors.NewIOError(perrors.CodeCopy, "failed to copy file", err).WithPath(to)
	}
	if err := dst.Close(); err != nil {
		return perrors.NewIOError(perrors.CodeCopy, "failed to close file", err).WithPath(to)
	}
	return nil
}

// cleanDir empties dir, leaving it in place.
func cleanDir(fsys afero.Fs, dir string) error {
	if err := fsys.RemoveAll(dir); err != nil {
		return perrors.NewIOError(perrors.CodeClean, "failed to clean output directory", err).WithPath(dir)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return perrors.NewIOError(perrors.CodeClean, "failed to recreate output directory", err).WithPath(dir)
	}
	return nil
}
