package launchfile

import (
	"errors"

	"github.com/containerd/platforms"
)

// A setup step.
//
// A step is either an operation (Run or Copy) with optional scoped modifiers,
// a standalone modifier (Shell, Workdir, Env) that persists for the rest of
// the setup, or a group of nested steps restricted to one platform.
type Step struct {
	Run      string            `yaml:"run"`      // Shell command.
	Copy     string            `yaml:"copy"`     // "src dest", src relative to the launch file.
	Shell    string            `yaml:"shell"`    // Shell used for run steps.
	Workdir  string            `yaml:"workdir"`  // Working directory for subsequent operations.
	Env      map[string]string `yaml:"env"`      // Environment for subsequent operations.
	Platform string            `yaml:"platform"` // Restricts a group to one platform.
	Steps    []Step            `yaml:"steps"`    // Nested steps.
}

// Reports whether the step applies when building for platform.
//
// Steps without a platform apply everywhere. Unparseable platforms never
// match; Validate rejects them beforehand.
func (s Step) Matches(platform string) bool {
	if s.Platform == "" {
		return true
	}
	want, err := platforms.Parse(s.Platform)
	if err != nil {
		return false
	}
	have, err := platforms.Parse(platform)
	if err != nil {
		return false
	}
	return platforms.OnlyStrict(want).Match(have)
}

func (s Step) validate() error {
	if s.Run != "" && s.Copy != "" {
		return errors.New("run and copy are mutually exclusive")
	}
	if len(s.Steps) > 0 && (s.Run != "" || s.Copy != "") {
		return errors.New("a group cannot also run or copy")
	}
	if s.Platform != "" {
		if len(s.Steps) == 0 {
			return errors.New("platform is only valid on a group")
		}
		if _, err := platforms.Parse(s.Platform); err != nil {
			return err
		}
	}
	for _, child := range s.Steps {
		if err := child.validate(); err != nil {
			return err
		}
	}
	return nil
}
