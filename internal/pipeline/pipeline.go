package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/slipwayhq/slipway/internal/manifest"
	"github.com/slipwayhq/slipway/internal/paths"
	"github.com/slipwayhq/slipway/internal/runtime"
)

// Controls pipeline execution.
type Options struct {
	Manifest *manifest.Manifest // Pipeline manifest to execute.
	Context  string             // Build context directory on the host.
	Output   string             // Directory for the exported image.
	Platform string             // Target platform (e.g., "linux/amd64"). Defaults to host.
}

// Returned after successful pipeline execution.
type Result struct {
	Output string // Directory containing the exported image.
}

// The subset of container operations the pipeline depends on.
type container interface {
	ID() string
	Exec(ctx context.Context, spec runtime.ExecSpec) (*runtime.ExecResult, error)
	MkdirAll(ctx context.Context, path string, user *runtime.Identity) error
	Chown(ctx context.Context, path string, user runtime.Identity) error
	CopyTo(ctx context.Context, r io.Reader, destDir string, user *runtime.Identity) error
	CopyContentsFrom(ctx context.Context, w io.Writer, dir string) error
	Stop(ctx context.Context) error
	Export(ctx context.Context, output string) error
	Destroy(ctx context.Context)
}

// Provides stage base images and containers.
type starter interface {
	PullImage(ctx context.Context, ref, platform string) error
	StartContainer(ctx context.Context, ref, id, platform string) (container, error)
}

// Adapts [runtime.Runtime] to the starter interface.
type runtimeStarter struct {
	rt *runtime.Runtime
}

func (s runtimeStarter) PullImage(ctx context.Context, ref, platform string) error {
	return s.rt.PullImage(ctx, ref, platform)
}

func (s runtimeStarter) StartContainer(ctx context.Context, ref, id, platform string) (container, error) {
	return s.rt.StartContainer(ctx, ref, id, platform)
}

// Executes a pipeline manifest against the container runtime.
//
// The step plan is verified before any container starts. Any step failure
// aborts the whole run: stage containers are destroyed and no image is
// produced. Re-running the pipeline is the only recovery mechanism.
func Run(ctx context.Context, rt *runtime.Runtime, opts Options) (*Result, error) {
	return run(ctx, runtimeStarter{rt: rt}, opts)
}

func run(ctx context.Context, rt starter, opts Options) (*Result, error) {
	if opts.Platform == "" {
		opts.Platform = runtime.DefaultPlatform()
	}

	slog.Info("executing pipeline",
		"app", opts.Manifest.App,
		"context", opts.Context,
		"output", opts.Output,
		"platform", opts.Platform,
	)

	if err := os.MkdirAll(opts.Output, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	p := newPipeline(rt, opts)
	defer p.destroyContainers(ctx)

	steps := p.plan()
	if err := verifyPlan(steps); err != nil {
		return nil, err
	}

	for _, s := range steps {
		slog.Info("running step", "step", s.name)
		if err := s.run(ctx); err != nil {
			return nil, fmt.Errorf("%w: step %q: %w", ErrPipeline, s.name, err)
		}
	}

	return &Result{Output: opts.Output}, nil
}

// Holds shared state across the steps of one pipeline run.
type pipeline struct {
	rt       starter            // Source of stage base images and containers.
	m        *manifest.Manifest // Pipeline manifest, read-only.
	context  string             // Build context directory on the host.
	output   string             // Output directory for the exported image.
	platform string             // Target platform.

	yard       container        // Build stage container, set by provisionYard.
	berth      container        // Runtime stage container, set by provisionBerth.
	phase      *phase           // Two-phase execution context for the yard.
	buildUser  runtime.Identity // Build user identity, resolved during yard provisioning.
	containers []container      // All stage containers, destroyed after the run.
}

// Creates a new [pipeline] from the given options.
func newPipeline(rt starter, opts Options) *pipeline {
	return &pipeline{
		rt:       rt,
		m:        opts.Manifest,
		context:  opts.Context,
		output:   opts.Output,
		platform: opts.Platform,
	}
}

// Returns the pipeline's step plan.
//
// The slice order is the execution order; the requires/provides sets are
// what verifyPlan checks it against.
func (p *pipeline) plan() []step {
	return []step{
		{
			name:     "verify inputs",
			provides: []condition{condInputsVerified},
			run:      p.verifyInputs,
		},
		{
			name:     "provision yard",
			requires: []condition{condInputsVerified},
			provides: []condition{condYardReady},
			run:      p.provisionYard,
		},
		{
			name:     "drop identity",
			requires: []condition{condYardReady},
			provides: []condition{condIdentityDropped},
			run:      p.dropIdentity,
		},
		{
			name:     "verify toolchain",
			requires: []condition{condYardReady, condIdentityDropped},
			provides: []condition{condToolchainVerified},
			run:      p.verifyToolchain,
		},
		{
			name:     "seed sources",
			requires: []condition{condIdentityDropped, condToolchainVerified},
			provides: []condition{condSourcesSeeded},
			run:      p.seedSources,
		},
		{
			name:     "install dependencies",
			requires: []condition{condToolchainVerified, condSourcesSeeded},
			provides: []condition{condDepsInstalled},
			run:      p.install,
		},
		{
			name:     "compile",
			requires: []condition{condDepsInstalled},
			provides: []condition{condCompiled},
			run:      p.compile,
		},
		{
			name:     "stamp release",
			requires: []condition{condCompiled},
			provides: []condition{condStamped},
			run:      p.stampRelease,
		},
		{
			name:     "provision berth",
			requires: []condition{condInputsVerified},
			provides: []condition{condBerthReady},
			run:      p.provisionBerth,
		},
		{
			name:     "promote artifact",
			requires: []condition{condStamped, condBerthReady},
			provides: []condition{condPromoted},
			run:      p.promote,
		},
		{
			name:     "assemble runtime",
			requires: []condition{condBerthReady},
			provides: []condition{condAssembled},
			run:      p.assemble,
		},
		{
			name:     "export image",
			requires: []condition{condPromoted, condAssembled},
			provides: []condition{condExported},
			run:      p.export,
		},
	}
}

// Destroys all stage containers.
func (p *pipeline) destroyContainers(ctx context.Context) {
	for _, ctr := range p.containers {
		ctr.Destroy(ctx)
	}
}

// Returns the yard container ID, scoped to the application.
func (p *pipeline) yardID() string {
	return p.m.App + "-yard"
}

// Returns the berth container ID, scoped to the application.
func (p *pipeline) berthID() string {
	return p.m.App + "-berth"
}
