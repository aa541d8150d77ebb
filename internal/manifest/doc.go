// Package manifest defines the pipeline manifest for a two-stage image
// build.
//
// A manifest is a YAML file, conventionally named slipway.yaml in the
// build context, describing the yard (the toolchain stage that installs
// dependencies and compiles the application), the release stamp, and
// the berth (the server stage that ships the compiled artifact). The
// manifest is loaded once, validated, and treated as read-only for the
// lifetime of a build.
//
// Example usage:
//
//	m, err := manifest.Load("slipway.yaml")
//	if err != nil {
//	    return err
//	}
//
//	rng, _ := m.Yard.Toolchain.ParseRange()
package manifest
