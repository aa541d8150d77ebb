package internal

import (
	"fmt"
	"runtime"
	"strings"
)

// Name used for commands, directories, and container labels.
const Name = "slipway"

// Placeholder for release builds done outside the release pipeline.
const localBuild = "(local)"

var (
	version   = "" // Release version (e.g., "1.2.3"), set via ldflags.
	gitCommit = "" // Git commit hash (e.g., "a1b2c3d4"), set via ldflags.

	rawQuiet   = "false" // Whether quiet mode is on by default.
	rawDebug   = "false" // Whether debug output is on by default.
	rawVerbose = "false" // Whether verbose output is on by default.
)

// Returns the release version without any "v" prefix, or "" for local builds.
func Version() string {
	v := strings.ToLower(strings.TrimSpace(version))
	return strings.TrimPrefix(v, "v")
}

// Returns true if this binary was built without release metadata.
//
// Release builds set both the version and the git commit via linker flags;
// a plain "go build" sets neither.
func IsLocal() bool {
	return Version() == "" || strings.TrimSpace(gitCommit) == ""
}

// Returns the version string shown to users.
//
// Release builds report "<version> <git-commit> [<arch>]". Local builds
// report "(local)".
func VersionString() string {
	if IsLocal() {
		return localBuild
	}
	return fmt.Sprintf("%s %s [%s]", Version(), strings.TrimSpace(gitCommit), runtime.GOARCH)
}
