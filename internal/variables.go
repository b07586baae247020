package internal

import (
	"fmt"
	"runtime"
	"strings"
)

// Program name, used for the CLI, the log group, directory naming and the
// image label namespace.
const Name = "cradle"

const (
	undefined  = "(undefined)" // Placeholder for an unset build variable.
	localBuild = "(local)"     // Version string of a non-pipeline build.
	mainBranch = "main"        // Stage that is omitted from version strings.
	labelRoot  = "org.cruciblehq." + Name
)

// Set with -ldflags "-X" by release pipelines.
var (
	version   = ""
	stage     = ""
	gitCommit = ""

	rawQuiet   = "false"
	rawDebug   = "false"
	rawVerbose = "false"
)

// Returns the fully qualified image label for key.
//
// The build pipeline writes these labels and the launcher reads them back,
// e.g. Label("port") is "org.cruciblehq.cradle.port".
func Label(key string) string {
	return labelRoot + "." + key
}

// Returns the release version without a leading "v", lowercased.
func Version() string {
	v := strings.ToLower(buildVar(version))
	if v == undefined {
		return v
	}
	return strings.TrimPrefix(v, "v")
}

// Returns the release stage, which is the branch the binary was built from.
func Stage() string {
	return strings.ToLower(buildVar(stage))
}

// Returns the commit the binary was built from.
func GitCommit() string {
	return buildVar(gitCommit)
}

// Returns the os/arch pair the binary was compiled for.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Reports whether the binary was built outside a release pipeline, which is
// the case when any of version, stage or commit is missing.
func IsLocal() bool {
	for _, v := range []string{version, stage, gitCommit} {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// Returns the version line shown by "cradle version" and the daemon status.
//
// Local builds report "(local)". Release builds report
// "<version>[+<stage>] <commit> [<arch>]", where the stage is left out for
// the main branch.
func VersionString() string {
	if IsLocal() {
		return localBuild
	}

	v := Version()
	if s := Stage(); s != mainBranch {
		v += "+" + s
	}
	return fmt.Sprintf("%s %s [%s]", v, GitCommit(), runtime.GOARCH)
}

func buildVar(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return undefined
	}
	return v
}
