package protocol

// Lifecycle state of a launched container.
type ContainerState string

const (
	ContainerRunning    ContainerState = "running"     // The process is alive.
	ContainerStopped    ContainerState = "stopped"     // The container exists without a running process.
	ContainerNotCreated ContainerState = "not-created" // No container with the ID exists.
)

// Category of a failed request, so callers can tell the failure modes of a
// launch apart without parsing messages.
type ErrorKind string

const (
	KindImageResolution    ErrorKind = "image-resolution"
	KindDependencyInstall  ErrorKind = "dependency-install"
	KindEntryPointNotFound ErrorKind = "entrypoint-not-found"
	KindInvalid            ErrorKind = "invalid"
	KindInternal           ErrorKind = "internal"
)

// Payload of a [CmdError] response.
type ErrorResult struct {
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
}

// Payload of a [CmdBuild] request.
type BuildRequest struct {
	Path      string   `json:"path"`                // Launch file, or a directory holding one.
	Output    string   `json:"output"`              // Output directory, absolute.
	Locked    bool     `json:"locked,omitempty"`    // Fail on drift from an existing lock.
	Platforms []string `json:"platforms,omitempty"` // Overrides the launch file's platforms.
}

// An archive produced by a build.
type BuildImage struct {
	Platform string `json:"platform"`
	Path     string `json:"path"`
	Digest   string `json:"digest"`
	Size     int64  `json:"size"`
}

// Payload of a successful [CmdBuild] response.
type BuildResult struct {
	Output       string       `json:"output"`
	Images       []BuildImage `json:"images"`
	Lock         string       `json:"lock"`
	Dependencies string       `json:"dependencies"` // Digest of the installed set.
	Packages     int          `json:"packages"`
}

// Payload of a [CmdRun] request.
type RunRequest struct {
	Image    string `json:"image"`              // OCI archive path, absolute.
	ID       string `json:"id,omitempty"`       // Container ID. Empty generates one.
	Platform string `json:"platform,omitempty"` // Empty means the host platform.
}

// Payload of a successful [CmdRun] response.
type RunResult struct {
	ID      string `json:"id"`
	Pid     uint32 `json:"pid"`
	LogPath string `json:"log"` // File receiving the process output.
}

// Payload of [CmdStop] and [CmdContainerStatus] requests.
type ContainerRequest struct {
	ID string `json:"id"`
}

// Payload of a successful [CmdContainerStatus] response.
type ContainerStatusResult struct {
	ID    string         `json:"id"`
	State ContainerState `json:"state"`
}

// Payload of a successful [CmdStatus] response.
type StatusResult struct {
	Running  bool   `json:"running"`
	Version  string `json:"version"`
	Pid      int    `json:"pid"`
	Uptime   string `json:"uptime"`
	Builds   int    `json:"builds"`   // Builds completed since start.
	Launches int    `json:"launches"` // Detached launches since start.
	Active   int    `json:"active"`   // Detached processes still running.
}
