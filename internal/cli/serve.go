package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/cradle/internal/server"
	"github.com/cruciblehq/cradle/internal/settings"
)

// Represents the 'cradle serve' command.
type ServeCmd struct{}

// Executes the serve command.
//
// Starts the daemon on a Unix domain socket and blocks until the context is
// cancelled (e.g. via SIGINT or SIGTERM) or a shutdown command arrives.
func (c *ServeCmd) Run(ctx context.Context, cfg *settings.Settings) error {
	srv, err := server.New(server.Config{
		SocketPath: socketPath(cfg),
		Runtime:    runtimeConfig(cfg),
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("cradle daemon is running")

	select {
	case <-ctx.Done():
	case <-srv.Done():
	}

	slog.Info("shutting down")
	return srv.Stop()
}
