package cli

import (
	"context"
	"fmt"

	"github.com/cruciblehq/cradle/internal/client"
	"github.com/cruciblehq/cradle/internal/settings"
)

// Represents the 'cradle status' command.
type StatusCmd struct {
	ID string `arg:"" optional:"" help:"Container to query. Omit for the daemon itself."`
}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context, cfg *settings.Settings) error {
	cl := client.New(socketPath(cfg))

	if c.ID != "" {
		res, err := cl.ContainerStatus(ctx, c.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", res.ID, res.State)
		return nil
	}

	res, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("version   %s\n", res.Version)
	fmt.Printf("pid       %d\n", res.Pid)
	fmt.Printf("uptime    %s\n", res.Uptime)
	fmt.Printf("builds    %d\n", res.Builds)
	fmt.Printf("launches  %d\n", res.Launches)
	fmt.Printf("active    %d\n", res.Active)
	return nil
}

// Represents the 'cradle stop' command.
type StopCmd struct {
	ID string `arg:"" help:"Container to stop."`
}

// Executes the stop command.
func (c *StopCmd) Run(ctx context.Context, cfg *settings.Settings) error {
	return client.New(socketPath(cfg)).Stop(ctx, c.ID)
}

// Represents the 'cradle shutdown' command.
type ShutdownCmd struct{}

// Executes the shutdown command.
func (c *ShutdownCmd) Run(ctx context.Context, cfg *settings.Settings) error {
	return client.New(socketPath(cfg)).Shutdown(ctx)
}
