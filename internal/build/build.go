package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cruciblehq/cradle/internal/launchfile"
	"github.com/cruciblehq/cradle/internal/paths"
	"github.com/cruciblehq/cradle/internal/requirements"
	"github.com/cruciblehq/cradle/internal/runtime"
	"github.com/opencontainers/go-digest"
)

const (

	// Filename of the OCI archive written for each platform.
	ImageFilename = "image.tar"

	// Filename of the installed dependency set, next to the archive.
	LockFilename = "dependencies.lock"
)

// Controls a build.
type Options struct {
	File      *launchfile.File // Launch definition to build.
	Output    string           // Directory for the archive and the lock file.
	Locked    bool             // Fail when the installed set differs from an existing lock.
	Platforms []string         // Overrides the launch file's platforms when set.
}

// Returned after a successful build.
type Result struct {
	Output       string        // Directory containing the build outputs.
	Images       []Image       // One archive per platform, in build order.
	LockPath     string        // Path of the written lock file.
	Dependencies digest.Digest // Digest of the installed set.
	Packages     int           // Number of installed packages.
}

// An exported archive.
type Image struct {
	Platform string        // OCI platform the archive was built for.
	Path     string        // Archive path.
	Digest   digest.Digest // Root descriptor digest.
	Size     int64         // Archive size in bytes.
}

// Builds a launch definition against the container runtime.
//
// The manifest is parsed before any image is resolved, so syntax errors fail
// fast with [ErrDependencyInstall]. Each target platform is then built in
// order: resolve the base, run setup steps, install dependencies, record the
// installed set, copy the application tree and export the archive. Archives
// only appear once fully written; a failed build leaves none behind.
func Run(ctx context.Context, rt *runtime.Runtime, opts Options) (*Result, error) {
	f := opts.File
	if err := f.Validate(); err != nil {
		return nil, err
	}

	manifests, err := loadManifests(f.ManifestPath())
	if err != nil {
		return nil, err
	}

	output, err := filepath.Abs(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := os.MkdirAll(output, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	platforms := f.Platforms
	if len(opts.Platforms) > 0 {
		platforms = opts.Platforms
	}
	if len(platforms) == 0 {
		platforms = []string{runtime.HostPlatform()}
	}

	var prior *requirements.Lock
	if opts.Locked {
		prior, err = readLock(filepath.Join(output, LockFilename))
		if err != nil {
			return nil, err
		}
	}

	slog.Info("building",
		"name", f.Name,
		"base", f.Base,
		"requirements", len(manifests.main.Requirements),
		"platforms", platforms,
		"output", output,
	)

	p, err := newPipeline(rt, f, manifests, output, platforms, prior)
	if err != nil {
		return nil, err
	}
	return p.build(ctx)
}
