package build

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/cradle/internal/runtime"
)

// Executes a setup copy step.
//
// The copy string has the format "src dest". Relative sources resolve
// against the launch file's directory, relative destinations against the
// current workdir.
func executeCopy(ctx context.Context, ctr *runtime.Container, copyStr, workdir, buildCtx string) error {
	src, dest, err := parseCopy(copyStr, workdir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	if err := ctr.MkdirAll(ctx, path.Dir(dest)); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	return executeHostCopy(ctx, ctr, src, dest, buildCtx)
}

// Copies a file or directory from the host to dest in the container.
func executeHostCopy(ctx context.Context, ctr *runtime.Container, src, dest, buildCtx string) error {
	if !filepath.IsAbs(src) {
		src = filepath.Join(buildCtx, src)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	slog.Debug("copy", "src", src, "dest", dest, "dir", info.IsDir())

	return streamTar(ctx, ctr, path.Dir(dest), func(tw *tar.Writer) error {
		if info.IsDir() {
			return writeDirToTar(tw, src, path.Base(dest), nil)
		}
		return writeFileToTar(tw, src, path.Base(dest))
	})
}

// Copies the contents of a host directory into dest, leaving out whatever
// the filter excludes.
func copyTree(ctx context.Context, ctr *runtime.Container, src, dest string, flt *filter) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	return streamTar(ctx, ctr, dest, func(tw *tar.Writer) error {
		return writeDirToTar(tw, src, "", flt)
	})
}

// Pipes a tar stream produced by write into destDir in the container.
func streamTar(ctx context.Context, ctr *runtime.Container, destDir string, write func(*tar.Writer) error) error {
	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		err := write(tw)
		if closeErr := tw.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	err := ctr.CopyTo(ctx, pr, destDir)
	pr.Close()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	return nil
}

// Parses a copy string into source and destination paths.
//
// The string must contain exactly two whitespace-separated tokens. If dest
// is not absolute, it is joined with workdir.
func parseCopy(s, workdir string) (src, dest string, err error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected source and destination, got %q", s)
	}

	src, dest = parts[0], parts[1]

	if !path.IsAbs(dest) {
		if workdir == "" {
			return "", "", fmt.Errorf("relative dest %q requires workdir", dest)
		}
		dest = path.Join(workdir, dest)
	}

	return src, path.Clean(dest), nil
}

// Writes a single file to a tar writer with the given archive name.
func writeFileToTar(tw *tar.Writer, hostPath, name string) error {
	info, err := os.Lstat(hostPath)
	if err != nil {
		return err
	}
	return writeTarEntry(tw, hostPath, name, info)
}

// Writes a directory tree to a tar writer under the given archive prefix.
//
// An empty prefix writes the directory's contents without an entry for the
// directory itself. A nil filter keeps everything.
func writeDirToTar(tw *tar.Writer, hostDir, prefix string, flt *filter) error {
	return filepath.WalkDir(hostDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(hostDir, p)
		if err != nil {
			return err
		}
		if rel == "." && prefix == "" {
			return nil
		}

		if flt != nil {
			skip, err := flt.excludes(rel, p)
			if err != nil {
				return err
			}
			if skip {
				if d.IsDir() && flt.prunable() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		name := filepath.ToSlash(filepath.Join(prefix, rel))
		return writeTarEntry(tw, p, name, info)
	})
}

// Writes one file, directory or symlink entry to a tar writer.
//
// Symlinks are archived as links, not followed. Other special files are
// skipped.
func writeTarEntry(tw *tar.Writer, hostPath, name string, info fs.FileInfo) error {
	mode := info.Mode()
	if !mode.IsRegular() && !mode.IsDir() && mode&fs.ModeSymlink == 0 {
		slog.Debug("skipping special file", "path", hostPath, "mode", mode)
		return nil
	}

	var link string
	if mode&fs.ModeSymlink != 0 {
		target, err := os.Readlink(hostPath)
		if err != nil {
			return err
		}
		link = target
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if mode.IsDir() && !strings.HasSuffix(header.Name, "/") {
		header.Name += "/"
	}

	// Host ownership means nothing inside the image.
	header.Uid, header.Gid = 0, 0
	header.Uname, header.Gname = "", ""

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if !mode.IsRegular() {
		return nil
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}
