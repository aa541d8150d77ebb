package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blang/semver/v4"
)

// Matches the first dotted version number in a toolchain's output.
var versionPattern = regexp.MustCompile(`\d+(?:\.\d+){0,2}`)

// Extracts a semantic version from a toolchain's version output.
//
// Handles the common report shapes: a bare "v22.1.0" (node), a labelled
// "nginx version: nginx/1.27.0", or a version embedded in a longer line.
// Only the first line of output is considered.
func parseToolchainVersion(output string) (semver.Version, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")

	match := versionPattern.FindString(line)
	if match == "" {
		return semver.Version{}, fmt.Errorf("%w: no version number in %q", ErrToolchain, line)
	}

	version, err := semver.ParseTolerant(match)
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w: %q: %w", ErrToolchain, match, err)
	}
	return version, nil
}
