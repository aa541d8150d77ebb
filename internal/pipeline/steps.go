package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/slipwayhq/slipway/internal/runtime"
)

// Checks that every host input named by the manifest exists.
//
// A missing lock file, source, release file, or serving configuration is
// fatal here, before any container starts, so an inconsistent input set
// never reaches the install or compile commands.
func (p *pipeline) verifyInputs(ctx context.Context) error {
	for _, rel := range p.hostInputs() {
		if _, err := os.Stat(filepath.Join(p.context, rel)); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrMissingInput, rel, err)
		}
	}
	return nil
}

// Returns every host path the pipeline reads, relative to the context.
func (p *pipeline) hostInputs() []string {
	y := p.m.Yard
	inputs := []string{y.PackageManifest, y.Lockfile}
	inputs = append(inputs, y.Sources...)
	inputs = append(inputs, y.Configs...)
	inputs = append(inputs, p.m.Release.File, p.m.Berth.Config)
	return inputs
}

// Starts the yard container and runs the privileged setup phase: the build
// user is created and the working and artifact directories are prepared
// under its ownership. These are the only operations that run privileged.
func (p *pipeline) provisionYard(ctx context.Context) error {
	y := p.m.Yard

	if err := p.rt.PullImage(ctx, y.Image, p.platform); err != nil {
		return err
	}

	ctr, err := p.rt.StartContainer(ctx, y.Image, p.yardID(), p.platform)
	if err != nil {
		return err
	}
	p.yard = ctr
	p.containers = append(p.containers, ctr)
	p.phase = newPhase(ctr)

	user, err := p.phase.CreateUser(ctx, y.User)
	if err != nil {
		return err
	}
	p.buildUser = user

	if err := p.phase.PrepareDir(ctx, y.Workdir, user); err != nil {
		return err
	}
	return p.phase.PrepareDir(ctx, y.ArtifactDir, user)
}

// Switches the yard phase to the build user for the rest of the stage.
func (p *pipeline) dropIdentity(ctx context.Context) error {
	p.phase.Drop(p.buildUser)
	slog.Debug("identity dropped", "user", p.m.Yard.User, "uid", p.buildUser.UID, "gid", p.buildUser.GID)
	return nil
}

// Probes the toolchain version and enforces the manifest's accepted range.
//
// Runs before any application source enters the container, so an
// out-of-range toolchain never gets to execute untrusted build scripts.
func (p *pipeline) verifyToolchain(ctx context.Context) error {
	t := p.m.Yard.Toolchain

	result, err := p.phase.Exec(ctx, runtime.ExecSpec{
		Command: t.Command,
		Workdir: p.m.Yard.Workdir,
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %q exit code %d: %s", ErrToolchain, t.Command, result.ExitCode, result.Stderr)
	}

	// Some toolchains report their version on stderr (nginx, openjdk).
	output := result.Stdout
	if output == "" {
		output = result.Stderr
	}

	version, err := parseToolchainVersion(output)
	if err != nil {
		return err
	}

	rng, err := t.ParseRange()
	if err != nil {
		return err
	}
	if !rng(version) {
		return fmt.Errorf("%w: version %s outside accepted range %q", ErrToolchain, version, t.Range)
	}

	slog.Debug("toolchain verified", "version", version.String(), "range", t.Range)
	return nil
}

// Copies the dependency manifest, lock file, sources, and build-config
// files from the build context into the yard's working directory.
//
// Relative paths are preserved, so a source named "config/site.json" lands
// at "<workdir>/config/site.json". Extraction runs as the build user.
func (p *pipeline) seedSources(ctx context.Context) error {
	y := p.m.Yard

	entries := []string{y.PackageManifest, y.Lockfile}
	entries = append(entries, y.Sources...)
	entries = append(entries, y.Configs...)

	for _, rel := range entries {
		err := streamHostEntry(filepath.Join(p.context, rel), filepath.ToSlash(rel), func(r io.Reader) error {
			return p.phase.CopyTo(ctx, r, y.Workdir)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Runs the dependency install command as the build user.
//
// The installer's own manifest/lock consistency check is part of its
// contract: a lock file that disagrees with the dependency manifest makes
// it exit non-zero, which aborts the pipeline here.
func (p *pipeline) install(ctx context.Context) error {
	return p.execBuild(ctx, p.m.Yard.Install)
}

// Runs the compile command as the build user, targeting the artifact
// directory.
func (p *pipeline) compile(ctx context.Context) error {
	return p.execBuild(ctx, p.m.Yard.CompileCommand())
}

// Starts the berth container from the server image.
func (p *pipeline) provisionBerth(ctx context.Context) error {
	b := p.m.Berth

	if err := p.rt.PullImage(ctx, b.Image, p.platform); err != nil {
		return err
	}

	ctr, err := p.rt.StartContainer(ctx, b.Image, p.berthID(), p.platform)
	if err != nil {
		return err
	}
	p.berth = ctr
	p.containers = append(p.containers, ctr)
	return nil
}

// Carries the artifact directory across the stage boundary.
//
// The contents of the yard's artifact directory are streamed as a single
// tar pipe into the berth's document root. This is the only transfer
// between the stages; the yard's sources, dependency cache, and toolchain
// never reach the berth. A compile that produced no artifact directory
// surfaces here as a tar failure.
func (p *pipeline) promote(ctx context.Context) error {
	docroot := p.m.Berth.DocumentRoot

	if err := p.berth.MkdirAll(ctx, docroot, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- p.yard.CopyContentsFrom(ctx, pw, p.m.Yard.ArtifactDir)
		pw.Close()
	}()

	if err := p.berth.CopyTo(ctx, pr, docroot, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	if err := <-errc; err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	slog.Debug("artifact promoted", "from", p.m.Yard.ArtifactDir, "to", docroot)
	return nil
}

// Places the serving configuration at the server's config path.
//
// The file is copied verbatim from the host; no transformation is applied.
func (p *pipeline) assemble(ctx context.Context) error {
	b := p.m.Berth

	destDir := path.Dir(b.ConfigPath)
	if err := p.berth.MkdirAll(ctx, destDir, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	return streamHostEntry(filepath.Join(p.context, b.Config), path.Base(b.ConfigPath), func(r io.Reader) error {
		return p.berth.CopyTo(ctx, r, destDir, nil)
	})
}

// Stops the berth and exports its filesystem as the final OCI image.
func (p *pipeline) export(ctx context.Context) error {
	if err := p.berth.Stop(ctx); err != nil {
		return err
	}
	return p.berth.Export(ctx, p.output)
}

// Runs a build command in the yard as the dropped identity, treating a
// non-zero exit as fatal.
func (p *pipeline) execBuild(ctx context.Context, command string) error {
	result, err := p.phase.Exec(ctx, runtime.ExecSpec{
		Command: command,
		Workdir: p.m.Yard.Workdir,
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %q exit code %d: %s", ErrCommandFailed, command, result.ExitCode, result.Stderr)
	}
	return nil
}
