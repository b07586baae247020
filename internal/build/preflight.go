package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cruciblehq/cradle/internal/launchfile"
)

// Outcome of a static preflight check.
type Report struct {
	Name         string   // Resource name.
	Base         string   // Base image reference as written.
	Requirements int      // Named requirements, includes merged.
	Manifests    []string // Manifest files read, root first.
	Entrypoint   string   // Entry point path inside the image, empty if none can be derived.
	Found        bool     // The entry point is part of the copied tree.
	Warnings     []string // Problems that do not stop a build.
}

// Checks a launch definition without touching the container runtime.
//
// The launch file and the manifest are validated the same way [Run] does,
// and those errors are returned. Whether the entry point will be present is
// only reported: the authoritative check happens when the image is started,
// since setup steps may create it or the base image may already contain it.
func Preflight(f *launchfile.File) (*Report, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	manifests, err := loadManifests(f.ManifestPath())
	if err != nil {
		return nil, err
	}

	src := f.SourceDir()
	if info, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: source %s is not a directory", ErrFileSystemOperation, src)
	}

	report := &Report{
		Name:         f.Name,
		Base:         f.Base,
		Requirements: len(manifests.main.Names()),
		Manifests:    manifests.files,
		Entrypoint:   f.EntrypointPath(),
	}

	for _, r := range manifests.main.Requirements {
		if r.Name == "" || r.URL != "" {
			continue
		}
		if _, pinned := r.Pin(); !pinned {
			report.warn("requirement %s on line %d is not pinned to an exact version", r.Key(), r.Line)
		}
	}

	if err := report.checkEntrypoint(f, src); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *Report) checkEntrypoint(f *launchfile.File, src string) error {
	if r.Entrypoint == "" {
		r.warn("no entry point script can be derived from command %q", f.Command)
		return nil
	}

	host := f.SourceEntrypoint()
	if host == "" {
		r.warn("entry point %s is outside %s and can only be checked at start", r.Entrypoint, f.Workdir)
		return nil
	}

	info, err := os.Stat(host)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.warn("entry point %s not found in source tree", host)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if info.IsDir() {
		r.warn("entry point %s is a directory", host)
		return nil
	}

	flt, err := newFilter(src)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(src, host)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	excluded, err := flt.excludes(rel, host)
	if err != nil {
		return err
	}
	if excluded {
		r.warn("entry point %s is excluded by %s", rel, ignoreFilename)
		return nil
	}

	r.Found = true
	return nil
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
