package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cruciblehq/cradle/internal/paths"
	"github.com/cruciblehq/cradle/internal/requirements"
)

// Reads the lock a locked build is held to.
//
// A locked build without a lock has nothing to compare against, so a
// missing file fails with [ErrDependencyDrift].
func readLock(p string) (*requirements.Lock, error) {
	fh, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no lock file at %s", ErrDependencyDrift, p)
		}
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	defer fh.Close()

	lock, err := requirements.ParseLock(fh)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFileSystemOperation, p, err)
	}
	return lock, nil
}

// Writes the lock next to the archive.
//
// The file is written to a temporary sibling and renamed, so readers never
// see a partial lock.
func writeLock(p string, lock *requirements.Lock) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := lock.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := tmp.Chmod(paths.DefaultFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	return nil
}

// Compares the installed set against the lock a locked build is held to.
//
// A nil prior means the build is not locked.
func checkDrift(prior, installed *requirements.Lock) error {
	if prior == nil || prior.Digest() == installed.Digest() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDependencyDrift, describeChanges(requirements.Diff(prior, installed)))
}
