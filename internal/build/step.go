package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/cradle/internal/launchfile"
	"github.com/cruciblehq/cradle/internal/runtime"
)

// Executes setup steps in order against the build container.
func executeSteps(ctx context.Context, ctr *runtime.Container, steps []launchfile.Step, platform string, state *stepState, buildCtx string) error {
	for i, step := range steps {
		if err := executeStep(ctx, ctr, step, platform, state, buildCtx); err != nil {
			return fmt.Errorf("%w: step %d: %w", ErrBuild, i+1, err)
		}
	}
	return nil
}

// Executes a single step, dispatching to group recursion, an operation, or
// a state change depending on the step's fields.
func executeStep(ctx context.Context, ctr *runtime.Container, step launchfile.Step, platform string, state *stepState, buildCtx string) error {
	if len(step.Steps) > 0 {
		if !step.Matches(platform) {
			slog.Debug("skipping group", "platform", step.Platform, "building", platform)
			return nil
		}
		state.apply(step)
		return executeSteps(ctx, ctr, step.Steps, platform, state, buildCtx)
	}

	if step.Run != "" || step.Copy != "" {
		return executeOperation(ctx, ctr, step, state, buildCtx)
	}

	state.apply(step)
	return nil
}

// Executes a run or copy operation with the step's own modifiers applied.
func executeOperation(ctx context.Context, ctr *runtime.Container, step launchfile.Step, state *stepState, buildCtx string) error {
	resolved := state.resolve(step)

	if resolved.workdir != "" {
		if err := ctr.MkdirAll(ctx, resolved.workdir); err != nil {
			return err
		}
	}

	if step.Copy != "" {
		return executeCopy(ctx, ctr, step.Copy, resolved.workdir, buildCtx)
	}

	slog.Info("run", "command", step.Run)
	slog.Debug("run environment", "shell", resolved.shell, "workdir", resolved.workdir)

	result, err := ctr.Exec(ctx, resolved.shell, step.Run, resolved.environ(), resolved.workdir)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %q exited with code %d: %s",
			ErrCommandFailed, step.Run, result.ExitCode, tail(result.Stderr, stderrTail))
	}
	return nil
}
