package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/cradle/internal"
	"github.com/cruciblehq/cradle/internal/logging"
	"github.com/cruciblehq/cradle/internal/paths"
	"github.com/cruciblehq/cradle/internal/runtime"
	"github.com/cruciblehq/cradle/internal/settings"
)

// Represents the root command for cradle.
var RootCmd struct {
	Quiet    bool        `short:"q" help:"Suppress informational output."`
	Verbose  bool        `short:"v" help:"Enable verbose output."`
	Debug    bool        `short:"d" help:"Enable debug output."`
	Config   string      `short:"c" help:"Configuration file." type:"path" placeholder:"PATH"`
	Socket   string      `short:"s" help:"Override the daemon's Unix socket path." placeholder:"PATH"`
	Build    BuildCmd    `cmd:"" help:"Build a runnable image from a source tree."`
	Run      RunCmd      `cmd:"" help:"Start a built image as a foreground process."`
	Check    CheckCmd    `cmd:"" help:"Validate a launch definition without building."`
	Serve    ServeCmd    `cmd:"" help:"Run the daemon."`
	Status   StatusCmd   `cmd:"" help:"Show daemon or container status."`
	Stop     StopCmd     `cmd:"" help:"Stop a detached container."`
	Shutdown ShutdownCmd `cmd:"" help:"Stop the daemon."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// Parses arguments, loads settings, configures logging, and runs the
// selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds and launches single-process application containers on containerd."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	cfg, err := loadSettings()
	if err != nil {
		configureLogger(settings.Defaults().Log, kongCtx.Command())
		return err
	}

	configureLogger(cfg.Log, kongCtx.Command())

	return kongCtx.Run(cfg)
}

// Loads settings from the -c file or the default location.
func loadSettings() (*settings.Settings, error) {
	path := RootCmd.Config
	if path == "" {
		path = paths.ConfigFile()
	}
	return settings.Load(path)
}

// Configures the global logger from CLI flags, linker flags and settings.
//
// Flags win over settings. Records buffered since startup are replayed to
// the final handler.
func configureLogger(cfg settings.Log, command string) {
	handler, ok := slog.Default().Handler().(*logging.Handler)
	if !ok {
		return // Not a buffering handler, nothing to configure
	}

	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	level := logging.ParseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	handler.SetLevel(level)
	handler.Flush(logging.New(logging.Options{
		Level:   level,
		Format:  logFormat(cfg.Format, command),
		Verbose: verbose || debug,
		Writer:  os.Stderr,
	}))
}

// Resolves the "auto" log format: the daemon logs JSON for collectors,
// interactive commands log text.
func logFormat(format, command string) string {
	if format != "auto" {
		return format
	}
	if command == "serve" {
		return logging.FormatJSON
	}
	return logging.FormatText
}

// Socket path from the flag, then settings, then the default.
func socketPath(cfg *settings.Settings) string {
	if RootCmd.Socket != "" {
		return RootCmd.Socket
	}
	if cfg.Socket != "" {
		return cfg.Socket
	}
	return paths.Socket()
}

// Maps containerd settings to a runtime configuration.
func runtimeConfig(cfg *settings.Settings) runtime.Config {
	return runtime.Config{
		Address:     cfg.Containerd.Address,
		Namespace:   cfg.Containerd.Namespace,
		Snapshotter: cfg.Containerd.Snapshotter,
		Runtime:     cfg.Containerd.Runtime,
	}
}

// Connects to containerd for commands that run locally.
func openRuntime(cfg *settings.Settings) (*runtime.Runtime, error) {
	return runtime.New(runtimeConfig(cfg))
}
