package pipeline

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/slipwayhq/slipway/internal/runtime"
)

// A two-phase execution context for the yard container.
//
// The phase starts privileged and exposes only a narrow, enumerated set of
// setup operations: creating the build user and preparing directories it
// owns. Drop transitions the phase to the build user's identity; the
// transition is one-way, and from then on every command and copy runs as
// that identity. Privileged operations after the drop fail with
// [ErrPrivilegesDropped].
type phase struct {
	ctr     container
	user    runtime.Identity
	dropped bool
}

// Creates a privileged [phase] for the given container.
func newPhase(ctr container) *phase {
	return &phase{ctr: ctr}
}

// Creates the build user inside the container and resolves its identity.
//
// Privileged. If useradd reports a conflict (the image may ship the user
// already), the account is accepted as long as its identity resolves.
func (p *phase) CreateUser(ctx context.Context, name string) (runtime.Identity, error) {
	if p.dropped {
		return runtime.Identity{}, ErrPrivilegesDropped
	}

	result, err := p.ctr.Exec(ctx, runtime.ExecSpec{Command: "useradd --create-home " + name})
	if err != nil {
		return runtime.Identity{}, err
	}

	user, resolveErr := p.resolveIdentity(ctx, name)
	if resolveErr != nil {
		if result.ExitCode != 0 {
			return runtime.Identity{}, fmt.Errorf("%w: useradd exit code %d: %s", ErrCommandFailed, result.ExitCode, result.Stderr)
		}
		return runtime.Identity{}, resolveErr
	}

	return user, nil
}

// Creates a directory tree inside the container and hands it to the owner.
//
// Privileged.
func (p *phase) PrepareDir(ctx context.Context, path string, owner runtime.Identity) error {
	if p.dropped {
		return ErrPrivilegesDropped
	}

	if err := p.ctr.MkdirAll(ctx, path, nil); err != nil {
		return err
	}
	return p.ctr.Chown(ctx, path, owner)
}

// Permanently switches the phase to the given identity.
//
// All subsequent Exec and CopyTo calls run as this identity. There is no
// way back to the privileged phase.
func (p *phase) Drop(user runtime.Identity) {
	p.user = user
	p.dropped = true
}

// Runs a command in the container as the dropped identity.
//
// Refuses to run while still privileged: commands that reach this method
// touch application sources and must not execute as root.
func (p *phase) Exec(ctx context.Context, spec runtime.ExecSpec) (*runtime.ExecResult, error) {
	if !p.dropped {
		return nil, ErrPrivilegesHeld
	}
	spec.User = &p.user
	return p.ctr.Exec(ctx, spec)
}

// Extracts a tar stream into the container as the dropped identity.
func (p *phase) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	if !p.dropped {
		return ErrPrivilegesHeld
	}
	user := p.user
	return p.ctr.CopyTo(ctx, r, destDir, &user)
}

// Resolves a user name to its numeric identity inside the container.
func (p *phase) resolveIdentity(ctx context.Context, name string) (runtime.Identity, error) {
	uid, err := p.probeID(ctx, "id -u "+name)
	if err != nil {
		return runtime.Identity{}, err
	}
	gid, err := p.probeID(ctx, "id -g "+name)
	if err != nil {
		return runtime.Identity{}, err
	}
	return runtime.Identity{UID: uid, GID: gid}, nil
}

// Runs an id command and parses its numeric output.
func (p *phase) probeID(ctx context.Context, command string) (uint32, error) {
	result, err := p.ctr.Exec(ctx, runtime.ExecSpec{Command: command})
	if err != nil {
		return 0, err
	}
	if result.ExitCode != 0 {
		return 0, fmt.Errorf("%w: %q exit code %d: %s", ErrCommandFailed, command, result.ExitCode, result.Stderr)
	}

	id, err := strconv.ParseUint(strings.TrimSpace(result.Stdout), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q printed %q: %w", ErrCommandFailed, command, result.Stdout, err)
	}
	return uint32(id), nil
}
