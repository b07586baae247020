package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	"github.com/cruciblehq/cradle/internal/protocol"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Process arguments for build containers, which only host exec calls.
var idleProcess = []oci.SpecOpts{oci.WithProcessArgs("sleep", "infinity")}

// A container backed by containerd.
type Container struct {
	client      *containerd.Client // Containerd client for managing the container.
	id          string             // Containerd container ID.
	platform    string             // OCI platform (e.g., "linux/amd64").
	snapshotter string             // Snapshotter holding the container's rootfs.
	ociRuntime  string             // Runtime shim running the task.
}

// Returns the container ID.
func (c *Container) ID() string {
	return c.id
}

// Queries the current state of the container.
//
// Returns [protocol.ContainerRunning] if the task is active,
// [protocol.ContainerStopped] if the container exists but has no running
// task, or [protocol.ContainerNotCreated] if the container does not exist.
func (c *Container) Status(ctx context.Context) (protocol.ContainerState, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return protocol.ContainerNotCreated, nil
		}
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return protocol.ContainerStopped, nil
		}
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if status.Status == containerd.Running {
		return protocol.ContainerRunning, nil
	}
	return protocol.ContainerStopped, nil
}

// Stops the container's task.
//
// The running task is killed and deleted. The container metadata is preserved.
// Calling Stop on an already-stopped container is not an error.
func (c *Container) Stop(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task.Kill(ctx, syscall.SIGKILL)
	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return nil
}

// Removes the container and its resources.
//
// The task is killed and the container is removed from containerd along
// with its snapshot. After destruction the handle is invalid.
func (c *Container) Destroy(ctx context.Context) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			slog.Warn("failed to load container for destruction", "id", c.id, "error", err)
		}
		return
	}

	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}

	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("failed to delete container during destruction", "id", c.id, "error", err)
	}
}

// Where a started process sends its output.
//
// A non-empty LogPath wins over the streams. With neither, output is
// discarded.
type Stdio struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	LogPath string // File receiving stdout and stderr.
}

func (s Stdio) creator() cio.Creator {
	switch {
	case s.LogPath != "":
		return cio.LogFile(s.LogPath)
	case s.Stdin == nil && s.Stdout == nil && s.Stderr == nil:
		return cio.NullIO
	}

	stdout, stderr := s.Stdout, s.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return cio.NewCreator(cio.WithStreams(s.Stdin, stdout, stderr))
}

// The container's primary process, started by [Container.Start].
type Process struct {
	task    containerd.Task
	statusC <-chan containerd.ExitStatus
}

// Starts the container's own process as its task.
//
// The exit channel is registered before the task starts so a process that
// exits immediately is still observed.
func (c *Container) Start(ctx context.Context, stdio Stdio) (*Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.NewTask(ctx, stdio.creator())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	statusC, err := subscribeExit(ctx, task)
	if err != nil {
		task.Delete(ctx)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("process started", "id", c.id, "pid", task.Pid())
	return &Process{task: task, statusC: statusC}, nil
}

// Something whose exit can be waited on, such as a containerd task.
type exitWaiter interface {
	Wait(ctx context.Context) (<-chan containerd.ExitStatus, error)
}

// Registers for the exit status of t.
//
// The subscription is detached from ctx. containerd ends it with an unknown
// status when its context is cancelled, which would hide the real exit
// status of a process that is being stopped.
func subscribeExit(ctx context.Context, t exitWaiter) (<-chan containerd.ExitStatus, error) {
	return t.Wait(context.WithoutCancel(ctx))
}

// Host PID of the process.
func (p *Process) Pid() uint32 {
	return p.task.Pid()
}

// Delivers a signal to the process.
func (p *Process) Signal(ctx context.Context, sig syscall.Signal) error {
	if err := p.task.Kill(ctx, sig); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}

// Blocks until the process exits and returns its exit status.
//
// The task is deleted once the status is collected. Cancelling ctx stops
// waiting but does not kill the process.
func (p *Process) Wait(ctx context.Context) (int, error) {
	var status containerd.ExitStatus
	select {
	case status = <-p.statusC:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	// The caller's context may already be cancelled by a forwarded signal.
	p.task.Delete(context.WithoutCancel(ctx))

	code, _, err := status.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return int(code), nil
}

// Creates the containerd container.
//
// The process comes from the image config unless opts override it. The
// container shares the host network namespace, so a port the process binds
// is reachable on the host directly.
func (c *Container) create(ctx context.Context, image containerd.Image, opts ...oci.SpecOpts) (containerd.Container, error) {
	specOpts := append([]oci.SpecOpts{
		oci.WithDefaultSpecForPlatform(c.platform),
		oci.WithImageConfig(image),
		oci.WithHostNamespace(specs.NetworkNamespace),
		oci.WithHostResolvconf,
		oci.WithHostHostsFile,
	}, opts...)

	return c.client.NewContainer(ctx, c.id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(c.snapshotter),
		containerd.WithNewSnapshot(c.id, image),
		containerd.WithRuntime(c.ociRuntime, nil),
		containerd.WithNewSpec(specOpts...),
	)
}

// Starts a build container's idle task with no attached IO.
func (c *Container) startIdleTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Removes an existing container with this ID, if one exists.
//
// Any running task is killed and the container is deleted along with its
// snapshot. This is a no-op when no container with the ID is found.
func (c *Container) remove(ctx context.Context) {
	existing, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return
	}
	if task, err := existing.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}
	existing.Delete(ctx, containerd.WithSnapshotCleanup)
}
