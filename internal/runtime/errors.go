package runtime

import "errors"

var (
	// Wraps every failure originating in the containerd client.
	ErrRuntime = errors.New("container runtime failure")

	// Reported when an image index carries no manifest usable for the
	// requested platform.
	ErrEmptyIndex = errors.New("image index has no manifests")
)
