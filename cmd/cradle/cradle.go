package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/cruciblehq/cradle/internal"
	"github.com/cruciblehq/cradle/internal/cli"
	"github.com/cruciblehq/cradle/internal/launch"
	"github.com/cruciblehq/cradle/internal/logging"
)

// The entry point for cradle.
//
// Initializes logging, displays startup information, and executes the root
// command. A foreground process's non-zero exit status becomes cradle's own
// exit status; any other error exits with 1.
func main() {
	slog.SetDefault(logger())

	slog.Debug("build", "version", internal.VersionString(), "platform", internal.Platform())

	slog.Debug("cradle is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		var exit *launch.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// Creates a buffered logger seeded from build-time linker flags.
//
// The logger is reconfigured after flag parsing via cli.Execute.
func logger() *slog.Logger {
	handler := logging.NewHandler()
	handler.SetLevel(logLevel())
	return slog.New(handler.WithGroup(internal.Name))
}

// Returns the log level derived from build-time linker flags.
func logLevel() slog.Level {
	if internal.IsDebug() {
		return slog.LevelDebug
	}
	if internal.IsQuiet() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
