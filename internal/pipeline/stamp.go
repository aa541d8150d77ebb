package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Writes the release stamp into the artifact directory.
//
// The release file's bytes are carried verbatim: the stamp inside the
// image is byte-for-byte the host file, regardless of what the compiler
// emitted. Stamping runs strictly after compilation so the compiler can
// never clobber it, and re-stamping with the same input produces an
// identical archive, making the step idempotent.
func (p *pipeline) stampRelease(ctx context.Context) error {
	data, err := os.ReadFile(filepath.Join(p.context, p.m.Release.File))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStamp, err)
	}

	archive, err := stampArchive(p.m.Yard.ArtifactDir, p.m.Release.Stamp, data)
	if err != nil {
		return err
	}

	return p.phase.CopyTo(ctx, bytes.NewReader(archive), p.m.Yard.ArtifactDir)
}

// Builds the single-entry tar archive carrying the release stamp.
//
// The stamp name is joined against the artifact directory with securejoin
// and rejected if the result would land outside it, so a malicious stamp
// name cannot write elsewhere in the yard.
func stampArchive(artifactDir, name string, data []byte) ([]byte, error) {
	dest, err := securejoin.SecureJoin(artifactDir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStamp, err)
	}
	if filepath.Dir(dest) != filepath.Clean(artifactDir) || filepath.Base(dest) != name {
		return nil, fmt.Errorf("%w: stamp %q escapes the artifact directory", ErrStamp, name)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0644,
		Size:     int64(len(data)),
	}
	normalizeHeader(header)

	if err := tw.WriteHeader(header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStamp, err)
	}
	if _, err := tw.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStamp, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStamp, err)
	}

	return buf.Bytes(), nil
}
