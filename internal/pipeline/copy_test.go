package pipeline

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectArchive(t *testing.T, hostPath, name string) []byte {
	t.Helper()

	var buf bytes.Buffer
	err := streamHostEntry(hostPath, name, func(r io.Reader) error {
		_, err := io.Copy(&buf, r)
		return err
	})
	require.NoError(t, err)
	return buf.Bytes()
}

func TestStreamHostEntryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"client"}`), 0644))

	archive := collectArchive(t, path, "package.json")

	tr := tar.NewReader(bytes.NewReader(archive))
	header, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "package.json", header.Name)

	data, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"client"}`, string(data))

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamHostEntryDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "app"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.ts"), []byte("export {}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "app", "app.ts"), []byte("export {}\n"), 0644))

	archive := collectArchive(t, filepath.Join(dir, "src"), "src")

	var names []string
	tr := tar.NewReader(bytes.NewReader(archive))
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}

	assert.Equal(t, []string{"src", "src/app", "src/app/app.ts", "src/main.ts"}, names)
}

func TestStreamHostEntryNormalizesHeaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.ts")
	require.NoError(t, os.WriteFile(path, []byte("export {}\n"), 0644))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now()))

	archive := collectArchive(t, path, "main.ts")

	tr := tar.NewReader(bytes.NewReader(archive))
	header, err := tr.Next()
	require.NoError(t, err)

	assert.True(t, header.ModTime.Equal(time.Unix(0, 0)))
	assert.Zero(t, header.Uid)
	assert.Zero(t, header.Gid)
	assert.Empty(t, header.Uname)
	assert.Empty(t, header.Gname)
}

// Two archives of the same tree must be byte-identical regardless of when
// the tree was written.
func TestStreamHostEntryDeterministic(t *testing.T) {
	build := func() string {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.ts"), []byte("export {}\n"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"client"}`), 0644))
		return dir
	}

	first := collectArchive(t, build(), "context")
	second := collectArchive(t, build(), "context")

	assert.Equal(t, first, second)
}

func TestStreamHostEntryMissing(t *testing.T) {
	err := streamHostEntry(filepath.Join(t.TempDir(), "absent"), "absent", func(io.Reader) error {
		t.Fatal("sink must not run for a missing entry")
		return nil
	})
	require.ErrorIs(t, err, ErrCopy)
}

func TestStreamHostEntrySinkError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.ts")
	require.NoError(t, os.WriteFile(path, []byte("export {}\n"), 0644))

	err := streamHostEntry(path, "main.ts", func(r io.Reader) error {
		return io.ErrUnexpectedEOF
	})
	require.ErrorIs(t, err, ErrCopy)
}
