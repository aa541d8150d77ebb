// Package pipeline orchestrates the two-stage image build.
//
// A build runs two containers against the container runtime: the yard,
// a toolchain container in which dependencies are installed and the
// application is compiled into a single artifact directory, and the
// berth, a static file server container that receives the artifact at
// its document root together with the serving configuration and is
// exported as the final OCI image.
//
// The stage boundary is a single tar stream carrying the artifact
// directory contents from the yard to the berth; nothing else from the
// build stage (sources, dependency caches, toolchain) reaches the
// final image.
//
// Steps declare the conditions they require and provide, and the plan
// is verified before any container starts: dependency install precedes
// compilation, compilation precedes the release stamp, the stamp
// precedes promotion, and promotion precedes the export. Commands that
// touch application sources run under a restricted user identity
// established by a one-way privilege drop after yard provisioning.
//
// Example usage:
//
//	result, err := pipeline.Run(ctx, rt, pipeline.Options{
//	    Manifest: m,
//	    Context:  ".",
//	    Output:   "dist",
//	})
//	if err != nil {
//	    return err
//	}
package pipeline
