package runtime

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
)

// Creates a directory inside the container, including parents.
//
// When user is non-nil the directory is created by (and therefore owned
// by) that identity.
func (c *Container) MkdirAll(ctx context.Context, path string, user *Identity) error {
	return c.mustExec(ctx, "mkdir", nil, nil, user, "mkdir", "-p", path)
}

// Recursively hands ownership of a container path to the given identity.
func (c *Container) Chown(ctx context.Context, path string, user Identity) error {
	owner := fmt.Sprintf("%d:%d", user.UID, user.GID)
	return c.mustExec(ctx, "chown", nil, nil, nil, "chown", "-R", owner, path)
}

// Copies a tar stream into the container's filesystem.
//
// The contents of r are extracted into destDir by piping them to "tar xf -
// -C destDir" inside the container. When user is non-nil the extraction
// runs as that identity, so the extracted files are owned by it.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string, user *Identity) error {
	return c.mustExec(ctx, "tar extract", r, nil, user, "tar", "xf", "-", "-C", destDir)
}

// Copies a path from the container's filesystem as a tar stream.
//
// The file or directory at path is archived by running "tar cf - -C <dir>
// <base>" inside the container and streaming the output to w.
func (c *Container) CopyFrom(ctx context.Context, w io.Writer, path string) error {
	return c.mustExec(ctx, "tar archive", nil, w, nil, "tar", "cf", "-", "-C", filepath.Dir(path), filepath.Base(path))
}

// Copies the contents of a container directory as a tar stream.
//
// Unlike [Container.CopyFrom], the archive entries are rooted at the
// directory itself ("tar cf - -C dir ."), so extracting the stream places
// the directory's contents directly at the destination rather than nested
// under the directory's base name.
func (c *Container) CopyContentsFrom(ctx context.Context, w io.Writer, dir string) error {
	return c.mustExec(ctx, "tar archive", nil, w, nil, "tar", "cf", "-", "-C", dir, ".")
}

// Helper method that runs a command inside the container, returning an error
// that includes desc if the process exits with a non-zero code.
func (c *Container) mustExec(ctx context.Context, desc string, stdin io.Reader, stdout io.Writer, user *Identity, args ...string) error {
	exitCode, stderr, err := c.execCommand(ctx, stdin, stdout, nil, "", user, args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s failed with exit code %d (%s)", ErrRuntime, desc, exitCode, stderr)
	}
	return nil
}
