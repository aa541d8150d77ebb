package pipeline

import (
	"context"
	"fmt"
)

// A named state of the build reached by completing a step.
type condition string

const (
	condInputsVerified    condition = "inputs-verified"
	condYardReady         condition = "yard-ready"
	condIdentityDropped   condition = "identity-dropped"
	condToolchainVerified condition = "toolchain-verified"
	condSourcesSeeded     condition = "sources-seeded"
	condDepsInstalled     condition = "dependencies-installed"
	condCompiled          condition = "artifact-compiled"
	condStamped           condition = "artifact-stamped"
	condBerthReady        condition = "berth-ready"
	condPromoted          condition = "artifact-promoted"
	condAssembled         condition = "runtime-assembled"
	condExported          condition = "image-exported"
)

// A single pipeline step.
//
// Ordering constraints are carried by the step itself rather than by its
// position in the plan: requires names the conditions that must already
// hold, provides names the conditions established on success. A plan that
// sequences a step before its requirements is rejected by verifyPlan, so
// a reordering cannot silently produce a corrupt artifact (for example a
// release stamp that the compiler later clobbers).
type step struct {
	name     string
	requires []condition
	provides []condition
	run      func(context.Context) error
}

// Checks that every step's requirements are provided by an earlier step.
func verifyPlan(steps []step) error {
	satisfied := make(map[condition]bool)

	for _, s := range steps {
		for _, req := range s.requires {
			if !satisfied[req] {
				return fmt.Errorf("%w: step %q requires %q, which no earlier step provides", ErrPlan, s.name, req)
			}
		}
		for _, c := range s.provides {
			satisfied[c] = true
		}
	}

	return nil
}
