package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruciblehq/cradle/internal/build"
	"github.com/cruciblehq/cradle/internal/client"
	"github.com/cruciblehq/cradle/internal/launch"
	"github.com/cruciblehq/cradle/internal/protocol"
	"github.com/cruciblehq/cradle/internal/runtime"
	"github.com/cruciblehq/cradle/internal/settings"
)

// Represents the 'cradle run' command.
type RunCmd struct {
	Image    string `arg:"" optional:"" help:"OCI archive or image reference. Defaults to the build output." placeholder:"IMAGE"`
	ID       string `help:"Container ID. Generated when empty."`
	Platform string `help:"Platform to run. Defaults to the host." placeholder:"OS/ARCH"`
	Detach   bool   `help:"Start through the daemon and return once the process is running."`
}

// Executes the run command.
//
// In the foreground the command exits with the process's exit status.
func (c *RunCmd) Run(ctx context.Context, cfg *settings.Settings) error {
	image := c.Image
	if image == "" {
		image = filepath.Join("dist", build.ImageFilename)
	}

	if c.Detach {
		return c.runDetached(ctx, cfg, image)
	}

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Interrupts also cancel ctx. launch.Run forwards them to the process
	// itself, so the cancellation would only deliver a second signal.
	code, err := launch.Run(context.WithoutCancel(ctx), rt, launch.Options{
		Image:    image,
		ID:       c.ID,
		Platform: c.Platform,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return &launch.ExitError{Code: code}
	}
	return nil
}

func (c *RunCmd) runDetached(ctx context.Context, cfg *settings.Settings, image string) error {
	if !runtime.IsArchive(image) {
		return fmt.Errorf("detached launches need an archive path, got %q", image)
	}
	abs, err := filepath.Abs(image)
	if err != nil {
		return err
	}

	result, err := client.New(socketPath(cfg)).Run(ctx, &protocol.RunRequest{
		Image:    abs,
		ID:       c.ID,
		Platform: c.Platform,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s\npid %d, output in %s\n", result.ID, result.Pid, result.LogPath)
	return nil
}
