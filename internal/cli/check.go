package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/cradle/internal/build"
	"github.com/cruciblehq/cradle/internal/launchfile"
)

// Represents the 'cradle check' command.
type CheckCmd struct {
	Path string `arg:"" optional:"" default:"." help:"Launch file, or a directory holding one." type:"path"`
}

// Executes the check command.
//
// Problems that would stop a build fail the command. Everything else is
// reported as a warning.
func (c *CheckCmd) Run(ctx context.Context) error {
	f, err := launchfile.Load(c.Path)
	if err != nil {
		return err
	}

	report, err := build.Preflight(f)
	if err != nil {
		return err
	}

	for _, w := range report.Warnings {
		slog.Warn(w)
	}

	entrypoint := report.Entrypoint
	if entrypoint == "" {
		entrypoint = "(none)"
	}

	fmt.Printf("name          %s\n", report.Name)
	fmt.Printf("base          %s\n", report.Base)
	fmt.Printf("requirements  %d from %d file(s)\n", report.Requirements, len(report.Manifests))
	fmt.Printf("port          %d\n", f.Port)
	fmt.Printf("command       %v\n", f.Command)
	fmt.Printf("entrypoint    %s (found: %t)\n", entrypoint, report.Found)
	return nil
}
