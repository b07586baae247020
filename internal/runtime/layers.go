package runtime

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/containerd/containerd/v2/core/content"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/containerd/v2/pkg/archive/compression"
	"github.com/containerd/platforms"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	whiteoutPrefix = ".wh."
	whiteoutOpaque = ".wh..wh..opq"
)

// Reports whether a regular file (or link) exists at p in an image's root
// filesystem.
//
// The platform's layers are read from the content store lowest first and
// replayed with whiteouts applied. Nothing is unpacked and no container is
// created, so the check is safe to run before a launch.
func (rt *Runtime) FileExists(ctx context.Context, tag, platform, p string) (bool, error) {
	pl, err := platforms.Parse(platform)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	cs := rt.client.ContentStore()
	manifest, err := images.Manifest(ctx, cs, img.Target, platforms.Only(pl))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	scan := newLayerScan(p)
	for _, layer := range manifest.Layers {
		if err := scanLayer(ctx, cs, layer, scan); err != nil {
			return false, fmt.Errorf("%w: layer %s: %w", ErrRuntime, layer.Digest, err)
		}
	}

	return scan.present, nil
}

// Feeds one decompressed layer blob to the scan.
func scanLayer(ctx context.Context, cs content.Provider, desc ocispec.Descriptor, scan *layerScan) error {
	ra, err := cs.ReaderAt(ctx, desc)
	if err != nil {
		return err
	}
	defer ra.Close()

	r, err := compression.DecompressStream(content.NewReader(ra))
	if err != nil {
		return err
	}
	defer r.Close()

	return scan.apply(r)
}

// Tracks whether one path survives a sequence of layer changesets.
type layerScan struct {
	target  string // Absolute, cleaned path.
	present bool
}

func newLayerScan(p string) *layerScan {
	return &layerScan{target: path.Clean("/" + p)}
}

// Replays a layer tar stream on top of the layers seen so far.
//
// Whiteouts only hide content from lower layers, so a file both whited out
// and added in the same layer is present afterwards. A directory at the
// target path does not count.
func (s *layerScan) apply(r io.Reader) error {
	var added, removed bool

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		name := path.Clean("/" + hdr.Name)
		dir, base := path.Split(name)
		dir = path.Clean(dir)

		switch {
		case base == whiteoutOpaque:
			if under(s.target, dir) {
				removed = true
			}
		case strings.HasPrefix(base, whiteoutPrefix):
			hidden := path.Join(dir, strings.TrimPrefix(base, whiteoutPrefix))
			if s.target == hidden || under(s.target, hidden) {
				removed = true
			}
		case name == s.target:
			added = hdr.Typeflag != tar.TypeDir
		}
	}

	s.present = (s.present && !removed) || added
	return nil
}

// Reports whether p lies strictly below dir.
func under(p, dir string) bool {
	if dir == "/" {
		return p != "/"
	}
	return strings.HasPrefix(p, dir+"/")
}
