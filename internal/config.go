package internal

import (
	"strconv"
	"sync/atomic"
)

var (
	quietMode   atomic.Bool // Indicates whether quiet mode is enabled.
	debugMode   atomic.Bool // Indicates whether debug output is enabled.
	verboseMode atomic.Bool // Indicates whether verbose output is enabled.
)

// Seeds the output modes from their linker-flag defaults.
func init() {
	if v, err := strconv.ParseBool(rawQuiet); err == nil {
		quietMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawDebug); err == nil {
		debugMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawVerbose); err == nil {
		verboseMode.Store(v)
	}
}

// Returns true if quiet mode is enabled.
func IsQuiet() bool {
	return quietMode.Load()
}

// Returns true if debug output is enabled.
func IsDebug() bool {
	return debugMode.Load()
}

// Returns true if verbose output is enabled.
func IsVerbose() bool {
	return verboseMode.Load()
}
