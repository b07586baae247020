package launch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/cruciblehq/cradle/internal"
	"github.com/cruciblehq/cradle/internal/launchfile"
	"github.com/cruciblehq/cradle/internal/paths"
	"github.com/cruciblehq/cradle/internal/runtime"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"
)

// Time a process gets to exit after the launch context is cancelled before
// it is killed.
const DefaultStopTimeout = 10 * time.Second

// Controls a launch.
type Options struct {
	Image       string        // OCI archive path or image reference.
	ID          string        // Container ID. Empty generates one from the image name.
	Platform    string        // Empty means the host platform.
	Stdin       io.Reader     // Attached to process 1 in foreground launches.
	Stdout      io.Writer     // Receives process output in foreground launches.
	Stderr      io.Writer     // Receives process errors in foreground launches.
	StopTimeout time.Duration // Zero means [DefaultStopTimeout].
}

// A detached launch.
type Launched struct {
	ID      string           // Container ID.
	LogPath string           // File receiving stdout and stderr.
	Process *runtime.Process // Process 1 of the container.
}

// Starts an image in the foreground and waits for its process to exit.
//
// The image's entry point is verified before any container is created; a
// missing script fails with [ErrEntryPointNotFound]. Run handles SIGINT and
// SIGTERM itself: before the process starts they abort the launch, and
// while it runs they are forwarded to it. Callers that also turn these
// signals into a cancelled ctx should pass a ctx without that cancellation,
// or the process receives a second signal. When ctx is cancelled the
// process gets SIGTERM and, after the stop timeout, SIGKILL. The container
// is removed once the process has exited. The returned status is the
// process's exit status.
func Run(ctx context.Context, rt *runtime.Runtime, opts Options) (int, error) {
	pctx, stopPrepare := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	ctr, err := prepare(pctx, rt, opts)
	stopPrepare()
	if err != nil {
		return 0, err
	}
	defer ctr.Destroy(context.WithoutCancel(ctx))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	proc, err := ctr.Start(ctx, runtime.Stdio{
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	slog.Info("process started", "id", ctr.ID(), "pid", proc.Pid())

	grace := opts.StopTimeout
	if grace <= 0 {
		grace = DefaultStopTimeout
	}

	done := make(chan struct{})
	var status int

	var g errgroup.Group
	g.Go(func() error {
		defer close(done)
		code, err := proc.Wait(context.WithoutCancel(ctx))
		status = code
		return err
	})
	g.Go(func() error {
		forward(ctx, proc, sigs, done, grace)
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	slog.Info("process exited", "id", ctr.ID(), "status", status)
	return status, nil
}

// Starts an image detached, with its output written to a log file.
//
// The entry point is verified as in [Run]. The container stays in place
// after the process exits until it is destroyed.
func Start(ctx context.Context, rt *runtime.Runtime, opts Options) (*Launched, error) {
	ctr, err := prepare(ctx, rt, opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(paths.Logs(), paths.DefaultDirMode); err != nil {
		ctr.Destroy(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	logPath := paths.LogFile(ctr.ID())
	proc, err := ctr.Start(ctx, runtime.Stdio{LogPath: logPath})
	if err != nil {
		ctr.Destroy(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	slog.Info("process started", "id", ctr.ID(), "pid", proc.Pid(), "log", logPath)
	return &Launched{ID: ctr.ID(), LogPath: logPath, Process: proc}, nil
}

// Makes the image available, verifies its entry point and creates the
// container.
func prepare(ctx context.Context, rt *runtime.Runtime, opts Options) (*runtime.Container, error) {
	platform := opts.Platform
	if platform == "" {
		platform = runtime.HostPlatform()
	}

	tag, err := rt.ResolveBase(ctx, opts.Image, platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.ImageConfig(ctx, tag, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	if err := verifyEntrypoint(ctx, rt, tag, platform, img.Config); err != nil {
		return nil, err
	}

	id := opts.ID
	if id == "" {
		id = containerID(img.Config.Labels[internal.Label(launchfile.LabelName)])
	}

	slog.Info("launching",
		"image", opts.Image,
		"id", id,
		"command", img.Config.Cmd,
		"port", img.Config.Labels[internal.Label(launchfile.LabelPort)],
	)

	ctr, err := rt.CreateContainer(ctx, tag, id, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	return ctr, nil
}

// Checks that the script the image's command runs is present in the image.
func verifyEntrypoint(ctx context.Context, rt *runtime.Runtime, tag, platform string, cfg ocispec.ImageConfig) error {
	if len(cfg.Entrypoint) == 0 && len(cfg.Cmd) == 0 {
		return fmt.Errorf("%w: image declares no command", ErrEntryPointNotFound)
	}

	p := entrypointPath(cfg)
	if p == "" {
		slog.Debug("no entry point script to verify", "command", cfg.Cmd)
		return nil
	}

	ok, err := rt.FileExists(ctx, tag, platform, p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryPointNotFound, p)
	}

	slog.Debug("entry point verified", "path", p)
	return nil
}

// Returns the image path of the script the process runs.
//
// The build records it as a label. Images built elsewhere fall back to the
// same derivation from the command and working directory.
func entrypointPath(cfg ocispec.ImageConfig) string {
	if p := cfg.Labels[internal.Label(launchfile.LabelEntrypoint)]; p != "" {
		return path.Clean(p)
	}

	cmd := append(append([]string{}, cfg.Entrypoint...), cfg.Cmd...)
	workdir := cfg.WorkingDir
	if workdir == "" {
		workdir = "/"
	}
	f := &launchfile.File{Command: cmd, Workdir: workdir}
	return f.EntrypointPath()
}

// Generates a container ID for a launch of the named image.
func containerID(name string) string {
	if name == "" {
		name = internal.Name
	}
	return name + "-" + uuid.NewString()[:8]
}

// Something that can receive forwarded signals.
type signaler interface {
	Signal(ctx context.Context, sig syscall.Signal) error
}

// Relays signals to the process until done is closed.
//
// Cancelling ctx counts as a SIGTERM unless a signal was already relayed.
// Once terminated, the process is killed if it is still running after grace.
func forward(ctx context.Context, target signaler, sigs <-chan os.Signal, done <-chan struct{}, grace time.Duration) {
	sctx := context.WithoutCancel(ctx)
	cancelled := ctx.Done()
	var kill <-chan time.Time
	relayed := false

	send := func(sig syscall.Signal) {
		if err := target.Signal(sctx, sig); err != nil {
			slog.Warn("failed to signal process", "signal", sig, "error", err)
		}
		if kill == nil && sig != syscall.SIGKILL {
			kill = time.After(grace)
		}
	}

	for {
		select {
		case <-done:
			return
		case s := <-sigs:
			sig, ok := s.(syscall.Signal)
			if !ok {
				continue
			}
			slog.Debug("forwarding signal", "signal", sig)
			relayed = true
			send(sig)
		case <-cancelled:
			cancelled = nil
			if !relayed {
				send(syscall.SIGTERM)
			}
		case <-kill:
			slog.Warn("process did not exit in time, killing", "timeout", grace)
			send(syscall.SIGKILL)
			kill = nil
		}
	}
}
