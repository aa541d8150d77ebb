package pipeline

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampArchive(t *testing.T) {
	data := []byte("4.1.0-dev\n")

	archive, err := stampArchive("/build/dist", "version.txt", data)
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(archive))
	header, err := tr.Next()
	require.NoError(t, err)

	assert.Equal(t, "version.txt", header.Name)
	assert.Equal(t, byte(tar.TypeReg), header.Typeflag)
	assert.Equal(t, int64(0644), header.Mode)
	assert.True(t, header.ModTime.Equal(time.Unix(0, 0)))
	assert.Zero(t, header.Uid)
	assert.Zero(t, header.Gid)

	got, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, data, got, "stamp bytes must be carried verbatim")

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF, "archive must hold exactly one entry")
}

func TestStampArchiveDeterministic(t *testing.T) {
	data := []byte("4.1.0-dev\n")

	first, err := stampArchive("/build/dist", "version.txt", data)
	require.NoError(t, err)
	second, err := stampArchive("/build/dist", "version.txt", data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStampArchiveRejectsEscapingNames(t *testing.T) {
	for _, name := range []string{
		"../version.txt",
		"sub/version.txt",
		"/etc/passwd",
		"..",
		".",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := stampArchive("/build/dist", name, nil)
			require.ErrorIs(t, err, ErrStamp)
		})
	}
}
