package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "cradle"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/cradle or /run/user/<uid>/cradle
//	macOS:   ~/Library/Caches/cradle/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName)
	}
	return filepath.Join(xdg.CacheHome, appName, "run")
}

// Default path to the Unix domain socket of the daemon.
//
//	Linux:   $XDG_RUNTIME_DIR/cradle/cradle.sock
//	macOS:   ~/Library/Caches/cradle/run/cradle.sock
func Socket() string {
	return filepath.Join(Runtime(), "cradle.sock")
}

// Default path to the daemon PID file.
func PIDFile() string {
	return filepath.Join(Runtime(), "cradle.pid")
}

// Default path to the configuration file.
//
//	Linux:   $XDG_CONFIG_HOME/cradle/config.yaml
//	macOS:   ~/Library/Application Support/cradle/config.yaml
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// Directory holding output of detached launches, one file per container.
//
//	Linux:   $XDG_STATE_HOME/cradle/logs
//	macOS:   ~/Library/Application Support/cradle/logs
func Logs() string {
	return filepath.Join(xdg.StateHome, appName, "logs")
}

// Path to the output log of a detached launch.
func LogFile(id string) string {
	return filepath.Join(Logs(), id+".log")
}
