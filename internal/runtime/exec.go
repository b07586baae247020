package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Output of a command execution inside a container.
type ExecResult struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// Runs a shell command inside a build container.
//
// The command is passed to the shell as "shell -c command". Environment
// variables and working directory override the container's OCI spec for
// this execution only. A non-zero exit code is reported in the result, not
// as an error.
func (c *Container) Exec(ctx context.Context, shell, command string, env []string, workdir string) (*ExecResult, error) {
	var stdout bytes.Buffer
	exitCode, stderr, err := c.execCommand(ctx, nil, &stdout, env, workdir, shell, "-c", command)
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr,
	}, nil
}

// Builds an OCI process spec for running a command inside the container.
//
// The base values are copied from the container's own OCI spec, then env and
// workdir are overridden if provided.
func (c *Container) buildProcessSpec(ctx context.Context, env []string, workdir string, args ...string) (*specs.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args

	if len(env) > 0 {
		pspec.Env = mergeEnv(pspec.Env, env)
	}
	if workdir != "" {
		pspec.Cwd = workdir
	}

	return &pspec, nil
}

// Merges override env vars on top of a base env slice.
//
// Base order is preserved; an override replaces its key in place and new
// keys are appended in override order. Entries without '=' are dropped.
func mergeEnv(base, overrides []string) []string {
	result := make([]string, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base)+len(overrides))

	for _, entries := range [][]string{base, overrides} {
		for _, entry := range entries {
			k, _, ok := strings.Cut(entry, "=")
			if !ok {
				continue
			}
			if i, seen := index[k]; seen {
				result[i] = entry
				continue
			}
			index[k] = len(result)
			result = append(result, entry)
		}
	}

	return result
}

// Runs a command inside the container, returning the exit code and captured
// stderr. A non-zero exit code is not treated as an error; the caller decides.
func (c *Container) execCommand(ctx context.Context, stdin io.Reader, stdout io.Writer, env []string, workdir string, args ...string) (int, string, error) {
	pspec, err := c.buildProcessSpec(ctx, env, workdir, args...)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	var stderr bytes.Buffer
	exitCode, err := c.execProcess(ctx, pspec, stdin, stdout, &stderr)
	if err != nil {
		return 0, "", err
	}
	return exitCode, stderr.String(), nil
}

// Starts a process inside the container's running task, waits for it to exit,
// and returns the exit code.
//
// The process is attached to the idle task as an additional exec. Nil output
// streams are replaced with io.Discard. When stdin is provided, the process
// stdin is closed explicitly once the reader is exhausted: the shim holds both
// ends of the stdin FIFO open and never propagates EOF on its own.
func (c *Container) execProcess(ctx context.Context, pspec *specs.Process, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	task, err := c.loadTask(ctx)
	if err != nil {
		return 0, err
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var eof <-chan struct{}
	if stdin != nil {
		r := newEOFReader(stdin)
		stdin, eof = r, r.eof
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return awaitProcess(ctx, process, eof)
}

// Loads the container's running task.
func (c *Container) loadTask(ctx context.Context) (containerd.Task, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return task, nil
}

// Starts an exec process, waits for it to exit and returns the exit code.
//
// If eof is non-nil, the process stdin is closed when it fires. The process
// is always deleted before returning.
func awaitProcess(ctx context.Context, process containerd.Process, eof <-chan struct{}) (int, error) {
	statusC, err := process.Wait(ctx)
	if err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := process.Start(ctx); err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if eof != nil {
		go func() {
			select {
			case <-eof:
				process.CloseIO(ctx, containerd.WithStdinCloser)
			case <-ctx.Done():
			}
		}()
	}

	var exitStatus containerd.ExitStatus
	select {
	case exitStatus = <-statusC:
	case <-ctx.Done():
		process.Kill(context.WithoutCancel(ctx), syscall.SIGKILL)
		exitStatus = <-statusC
	}
	process.Delete(context.WithoutCancel(ctx))

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	code, _, err := exitStatus.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return int(code), nil
}

// Reader that closes eof the first time the wrapped reader returns io.EOF.
type eofReader struct {
	r    io.Reader
	once sync.Once
	eof  chan struct{}
}

func newEOFReader(r io.Reader) *eofReader {
	return &eofReader{r: r, eof: make(chan struct{})}
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.once.Do(func() { close(e.eof) })
	}
	return n, err
}
