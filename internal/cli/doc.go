// Parses flags, loads settings and runs cradle's commands.
//
// The root command accepts the following flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-c, --config    Configuration file.
//	-s, --socket    Daemon Unix socket path.
//
// build, run and check work locally against containerd. serve runs the
// daemon; status, stop and shutdown talk to it, as do build --remote and
// run --detach. Flags override settings, which override build-time defaults
// set via linker flags. Once settings are loaded the global logger is
// reconfigured to the final level and format.
package cli
