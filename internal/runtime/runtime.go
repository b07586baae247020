package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/distribution/reference"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Connection and container defaults for a [Runtime].
type Config struct {
	Address     string // Containerd socket address.
	Namespace   string // Namespace scoping all images and containers.
	Snapshotter string // Snapshotter for container filesystems.
	Runtime     string // OCI runtime shim.
}

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client      *containerd.Client // Containerd client for managing containers and images.
	snapshotter string             // Snapshotter used for every container and unpack.
	ociRuntime  string             // Runtime shim used for every container.
}

// Creates a runtime connected to the containerd socket in cfg.
//
// The namespace scopes all containerd operations to a single tenant. The
// runtime must be closed when no longer needed.
func New(cfg Config) (*Runtime, error) {
	client, err := containerd.New(cfg.Address, containerd.WithDefaultNamespace(cfg.Namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return &Runtime{
		client:      client,
		snapshotter: cfg.Snapshotter,
		ociRuntime:  cfg.Runtime,
	}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Makes a base image available for the given platform and returns its name.
//
// A ref naming an existing file is treated as an OCI archive and imported.
// Anything else is parsed as a registry reference, normalized (e.g.,
// "python:3.10-slim" becomes "docker.io/library/python:3.10-slim") and
// pulled. The layers are unpacked into the snapshotter either way. Every
// failure wraps [ErrImageResolution].
func (rt *Runtime) ResolveBase(ctx context.Context, ref, platform string) (string, error) {
	if IsArchive(ref) {
		if abs, err := filepath.Abs(ref); err == nil {
			ref = abs
		}
		tag := imageTag(ref)
		if err := rt.ImportImage(ctx, ref, tag, platform); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrImageResolution, ref, err)
		}
		return tag, nil
	}

	name, err := normalizeReference(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrImageResolution, err)
	}

	slog.Info("pulling base image", "image", name, "platform", platform)

	img, err := rt.client.Pull(ctx, name,
		containerd.WithPullUnpack,
		containerd.WithPlatform(platform),
		containerd.WithPullSnapshotter(rt.snapshotter),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrImageResolution, name, err)
	}

	slog.Debug("base image ready", "image", img.Name(), "digest", img.Target().Digest)
	return img.Name(), nil
}

// Imports an OCI archive, tags it under the given name, and unpacks it for
// the platform.
func (rt *Runtime) ImportImage(ctx context.Context, path, tag, platform string) error {
	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := rt.unpackImage(ctx, tag, platform); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("image imported", "path", path, "tag", tag)
	return nil
}

// Starts a build container from an available image.
//
// A container is created with a fresh snapshot, and a long-running task
// (sleep infinity) is started so that subsequent Exec calls have a running
// process to attach to. Any existing container with the same ID is removed
// first. Building for a platform other than the host requires QEMU /
// binfmt_misc support in the kernel.
func (rt *Runtime) StartContainer(ctx context.Context, tag, id, platform string) (*Container, error) {
	c := rt.container(id, platform)

	// Remove any stale container from a previous build with the same ID.
	c.remove(ctx)

	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	ctr, err := c.create(ctx, image, idleProcess...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := c.startIdleTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("build container started", "id", id, "image", tag, "platform", platform)
	return c, nil
}

// Creates a container whose process is the image's own command.
//
// The process is not started; see [Container.Start]. Any existing container
// with the same ID is removed first.
func (rt *Runtime) CreateContainer(ctx context.Context, tag, id, platform string) (*Container, error) {
	c := rt.container(id, platform)
	c.remove(ctx)

	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if _, err := c.create(ctx, image); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container created", "id", id, "image", tag)
	return c, nil
}

// Returns the config of an available image for the platform.
func (rt *Runtime) ImageConfig(ctx context.Context, tag, platform string) (ocispec.Image, error) {
	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return ocispec.Image{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	config, err := image.Spec(ctx)
	if err != nil {
		return ocispec.Image{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return config, nil
}

// Returns a handle for an existing container on the host platform.
//
// The container is not loaded or verified; the handle is a lightweight
// reference that resolves the container lazily on subsequent calls.
func (rt *Runtime) Container(id string) *Container {
	return rt.container(id, HostPlatform())
}

// Returns a handle for an existing container, failing with
// [ErrContainerMissing] when containerd does not know the ID.
func (rt *Runtime) LoadContainer(ctx context.Context, id string) (*Container, error) {
	if _, err := rt.client.LoadContainer(ctx, id); err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrContainerMissing, id)
		}
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return rt.Container(id), nil
}

func (rt *Runtime) container(id, platform string) *Container {
	return &Container{
		client:      rt.client,
		id:          id,
		platform:    platform,
		snapshotter: rt.snapshotter,
		ociRuntime:  rt.ociRuntime,
	}
}

// Imports an OCI archive into the content store.
//
// The archive must contain exactly one image. Multi-platform archives
// are supported (single OCI index with per-platform manifests).
func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	// One record per entry of the archive's index.json. Platform selection
	// happens later in resolveImage.
	if len(imported) == 0 {
		return images.Image{}, ErrEmptyArchive
	} else if len(imported) > 1 {
		return images.Image{}, ErrMultipleImages
	}

	return imported[0], nil
}

// Tags an imported image under a deterministic name.
//
// Updates the tag if it already exists. Removes the source record when
// its name differs from the tag to avoid duplicates.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// Unpacks the image layers for the target platform into the snapshotter.
func (rt *Runtime) unpackImage(ctx context.Context, tag, platform string) error {
	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return err
	}

	return image.Unpack(ctx, rt.snapshotter)
}

// Looks up a tagged image and selects the manifest for the given platform.
func (rt *Runtime) resolveImage(ctx context.Context, tag, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Reports whether ref names an OCI archive on the local filesystem.
func IsArchive(ref string) bool {
	info, err := os.Stat(ref)
	return err == nil && info.Mode().IsRegular()
}

// Produces a fully qualified, tagged reference.
//
// Docker Hub shorthands are expanded and a missing tag defaults to "latest".
// Digest references are kept as they are.
func normalizeReference(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return reference.TagNameOnly(named).String(), nil
}

// Produces a containerd image tag from an archive path.
//
// The path is hashed to produce a tag that is always valid for OCI references
// regardless of which characters the path contains.
func imageTag(path string) string {
	h := sha256.Sum256([]byte(path))
	return fmt.Sprintf("import/%s:latest", hex.EncodeToString(h[:]))
}

// Returns the OCI platform for the host architecture.
func HostPlatform() string {
	return "linux/" + goruntime.GOARCH
}
