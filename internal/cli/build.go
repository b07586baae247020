package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cruciblehq/cradle/internal/build"
	"github.com/cruciblehq/cradle/internal/client"
	"github.com/cruciblehq/cradle/internal/launchfile"
	"github.com/cruciblehq/cradle/internal/protocol"
	"github.com/cruciblehq/cradle/internal/settings"
	"github.com/dustin/go-humanize"
)

// Represents the 'cradle build' command.
type BuildCmd struct {
	Path     string   `arg:"" optional:"" default:"." help:"Launch file, or a directory holding one." type:"path"`
	Output   string   `short:"o" default:"dist" help:"Output directory for the archive and the lock file." type:"path"`
	Locked   bool     `help:"Fail if the installed dependencies differ from the existing lock."`
	Platform []string `help:"Target platform, repeatable. Overrides the launch file." placeholder:"OS/ARCH"`
	Remote   bool     `help:"Build through the daemon."`
}

// Executes the build command.
func (c *BuildCmd) Run(ctx context.Context, cfg *settings.Settings) error {
	if c.Remote {
		return c.runRemote(ctx, cfg)
	}

	f, err := launchfile.Load(c.Path)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := build.Run(ctx, rt, build.Options{
		File:      f,
		Output:    c.Output,
		Locked:    c.Locked,
		Platforms: c.Platform,
	})
	if err != nil {
		return err
	}

	for _, img := range result.Images {
		printImage(img.Platform, img.Path, img.Digest.String(), img.Size)
	}
	fmt.Printf("lock      %s (%d packages, %s)\n", result.LockPath, result.Packages, result.Dependencies)
	return nil
}

func (c *BuildCmd) runRemote(ctx context.Context, cfg *settings.Settings) error {
	path, err := filepath.Abs(c.Path)
	if err != nil {
		return err
	}
	output, err := filepath.Abs(c.Output)
	if err != nil {
		return err
	}

	result, err := client.New(socketPath(cfg)).Build(ctx, &protocol.BuildRequest{
		Path:      path,
		Output:    output,
		Locked:    c.Locked,
		Platforms: c.Platform,
	})
	if err != nil {
		return err
	}

	for _, img := range result.Images {
		printImage(img.Platform, img.Path, img.Digest, img.Size)
	}
	fmt.Printf("lock      %s (%d packages, %s)\n", result.Lock, result.Packages, result.Dependencies)
	return nil
}

func printImage(platform, path, digest string, size int64) {
	fmt.Printf("image     %s %s %s (%s)\n", platform, path, digest, humanize.Bytes(uint64(size)))
}
