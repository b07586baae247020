// Package launch starts a built image as a single foreground process.
//
// Before a container is created, the script the image's command runs is
// looked up in the image layers. The build records its path as a label;
// images without one have it derived from their command and working
// directory. A missing script fails with [ErrEntryPointNotFound] and no
// container is left behind.
//
// [Run] attaches the caller's stdio to process 1, relays SIGINT and SIGTERM
// to it and returns its exit status. [Start] launches detached with output
// written to a log file under the XDG state directory.
package launch
