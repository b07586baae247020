package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cruciblehq/cradle/internal/launchfile"
	"github.com/cruciblehq/cradle/internal/requirements"
	"github.com/cruciblehq/cradle/internal/runtime"
	"github.com/dustin/go-humanize"
)

// Holds shared state for building all platforms of a launch definition.
type pipeline struct {
	rt         *runtime.Runtime     // Container runtime for image and container operations.
	file       *launchfile.File     // Definition being built.
	manifests  *manifestSet         // Parsed dependency manifest and the files it includes.
	output     string               // Absolute output directory.
	platforms  []string             // Target platforms to build for.
	prior      *requirements.Lock   // Lock to enforce, nil unless the build is locked.
	tree       *filter              // Selects the application files to copy.
	containers []*runtime.Container // Build containers across all platforms, destroyed at the end.
}

// Creates a new [pipeline].
//
// The output directory is never copied into the image, even when it lies
// inside the application tree.
func newPipeline(rt *runtime.Runtime, f *launchfile.File, manifests *manifestSet, output string, platforms []string, prior *requirements.Lock) (*pipeline, error) {
	tree, err := newFilter(f.SourceDir(), output)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		rt:        rt,
		file:      f,
		manifests: manifests,
		output:    output,
		platforms: platforms,
		prior:     prior,
		tree:      tree,
	}, nil
}

// Builds every platform, then writes the lock file.
//
// The lock records the installed set of the first platform. Differences on
// later platforms are logged; platform markers make them legitimate. All
// build containers are destroyed when the build completes. When any
// platform fails, no archive from this build or an earlier one is left in
// the output directory.
func (p *pipeline) build(ctx context.Context) (_ *Result, err error) {
	defer p.destroyContainers(context.WithoutCancel(ctx))
	defer func() {
		if err != nil {
			p.discardImages()
		}
	}()

	result := &Result{Output: p.output}
	var lock *requirements.Lock

	for _, platform := range p.platforms {
		img, installed, err := p.buildPlatform(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("%w: platform %s: %w", ErrBuild, platform, err)
		}

		if lock == nil {
			lock = installed
		} else if changes := requirements.Diff(lock, installed); len(changes) > 0 {
			slog.Warn("installed dependencies differ between platforms",
				"platform", platform,
				"changes", describeChanges(changes),
			)
		}

		result.Images = append(result.Images, *img)
	}

	lockPath := filepath.Join(p.output, LockFilename)
	if err := writeLock(lockPath, lock); err != nil {
		return nil, err
	}

	result.LockPath = lockPath
	result.Dependencies = lock.Digest()
	result.Packages = len(lock.Packages)
	return result, nil
}

// Builds the image for a single platform.
//
// Phases run in a fixed order: resolve the base image, start a build
// container, run setup steps, install the manifest, record and verify the
// installed set, copy the application tree, export. Dependencies are
// installed before the application files are copied.
func (p *pipeline) buildPlatform(ctx context.Context, platform string) (*Image, *requirements.Lock, error) {
	f := p.file
	slog.Info("building platform", "platform", platform)

	tag, err := p.rt.ResolveBase(ctx, f.Base, platform)
	if err != nil {
		return nil, nil, err
	}

	ctr, err := p.rt.StartContainer(ctx, tag, p.containerID(platform), platform)
	if err != nil {
		return nil, nil, err
	}
	p.containers = append(p.containers, ctr)

	if err := ctr.MkdirAll(ctx, f.Workdir); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	state := p.initialState()
	if err := executeSteps(ctx, ctr, f.Setup, platform, state, f.Dir()); err != nil {
		return nil, nil, fmt.Errorf("setup: %w", err)
	}

	installed, err := p.install(ctx, ctr, state)
	if err != nil {
		return nil, nil, err
	}

	if err := checkDrift(p.prior, installed); err != nil {
		return nil, nil, err
	}

	slog.Info("copying application", "source", f.SourceDir(), "workdir", f.Workdir)
	if err := copyTree(ctx, ctr, f.SourceDir(), f.Workdir, p.tree); err != nil {
		return nil, nil, err
	}

	if err := ctr.Stop(ctx); err != nil {
		return nil, nil, err
	}

	exported, err := ctr.Export(ctx, p.imagePath(platform), runtime.ImageConfig{
		Cmd:          f.Command,
		WorkingDir:   f.Workdir,
		ExposedPorts: []string{f.ExposedPort()},
		Env:          f.ImageEnv(),
		Labels:       f.ImageLabels(installed.Digest().String()),
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("image exported",
		"platform", platform,
		"path", exported.Path,
		"size", humanize.Bytes(uint64(exported.Size)),
	)

	return &Image{
		Platform: platform,
		Path:     exported.Path,
		Digest:   exported.Digest,
		Size:     exported.Size,
	}, installed, nil
}

// Step state every platform starts from: the image workdir and environment.
func (p *pipeline) initialState() *stepState {
	f := p.file
	env := make(map[string]string, len(f.Env)+1)
	for k, v := range f.Env {
		env[k] = v
	}
	env[launchfile.PortEnv] = strconv.Itoa(f.Port)

	state := newStepState()
	state.apply(launchfile.Step{Workdir: f.Workdir, Env: env})
	return state
}

// Removes every archive this build would have produced.
func (p *pipeline) discardImages() {
	for _, platform := range p.platforms {
		path := p.imagePath(platform)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to remove archive", "path", path, "error", err)
		}
	}
}

// Destroys all build containers.
func (p *pipeline) destroyContainers(ctx context.Context) {
	for _, ctr := range p.containers {
		ctr.Destroy(ctx)
	}
}

// Returns the build container ID for a platform.
func (p *pipeline) containerID(platform string) string {
	return fmt.Sprintf("%s-build-%s", p.file.Name, platformSlug(platform))
}

// Returns the archive path for a platform.
//
// A single-platform build writes {output}/image.tar. Multi-platform builds
// write one archive per platform subdirectory (e.g., {output}/linux-amd64).
func (p *pipeline) imagePath(platform string) string {
	if len(p.platforms) == 1 {
		return filepath.Join(p.output, ImageFilename)
	}
	return filepath.Join(p.output, platformSlug(platform), ImageFilename)
}

// Converts a platform string to a filesystem-safe slug.
//
// Replaces slashes with dashes (e.g., "linux/amd64" becomes "linux-amd64").
func platformSlug(platform string) string {
	return strings.ReplaceAll(platform, "/", "-")
}

func describeChanges(changes []requirements.Change) string {
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
