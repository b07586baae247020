package build

import (
	"maps"
	"path"
	"slices"

	"github.com/cruciblehq/cradle/internal/launchfile"
)

// Shell used for run steps and installer commands unless a step sets one.
const defaultShell = "/bin/sh"

// Modifiers in effect while setup steps run.
//
// Standalone modifier steps and groups change the state for everything that
// follows (apply). An operation's own modifiers only hold for that operation
// (resolve). The installer commands run with the state the setup steps
// leave behind.
type stepState struct {
	shell   string
	workdir string
	env     map[string]string
}

func newStepState() *stepState {
	return &stepState{
		shell: defaultShell,
		env:   make(map[string]string),
	}
}

// Persists a step's modifiers.
func (s *stepState) apply(step launchfile.Step) {
	if step.Shell != "" {
		s.shell = step.Shell
	}
	s.workdir = s.join(step.Workdir)
	maps.Copy(s.env, step.Env)
}

// Returns the state an operation runs with. The receiver is not modified.
func (s *stepState) resolve(step launchfile.Step) *stepState {
	resolved := &stepState{
		shell:   s.shell,
		workdir: s.join(step.Workdir),
		env:     maps.Clone(s.env),
	}
	maps.Copy(resolved.env, step.Env)

	if step.Shell != "" {
		resolved.shell = step.Shell
	}
	return resolved
}

// Resolves a step workdir against the current one. Empty keeps the current
// workdir.
func (s *stepState) join(dir string) string {
	switch {
	case dir == "":
		return s.workdir
	case path.IsAbs(dir) || s.workdir == "":
		return path.Clean(dir)
	default:
		return path.Join(s.workdir, dir)
	}
}

// The environment as sorted "key=value" entries for container exec.
func (s *stepState) environ() []string {
	env := make([]string, 0, len(s.env))
	for _, k := range slices.Sorted(maps.Keys(s.env)) {
		env = append(env, k+"="+s.env[k])
	}
	return env
}
