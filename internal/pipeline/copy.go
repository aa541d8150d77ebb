package pipeline

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Streams a host file or directory as a tar archive into sink.
//
// The entry appears in the archive under the given name; directories are
// archived recursively with the name as prefix. Headers are normalized so
// that identical inputs always produce identical archive bytes.
func streamHostEntry(hostPath, name string, sink func(io.Reader) error) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		var writeErr error

		if info.IsDir() {
			writeErr = writeDirToTar(tw, hostPath, name)
		} else {
			writeErr = writeFileToTar(tw, hostPath, name)
		}

		tw.Close()
		pw.CloseWithError(writeErr)
	}()

	if err := sink(pr); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	return nil
}

// Writes a single file to a tar writer with the given archive name.
func writeFileToTar(tw *tar.Writer, hostPath, name string) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	normalizeHeader(header)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// Writes a directory tree to a tar writer rooted at the given archive prefix.
//
// WalkDir visits entries in lexical order, which together with header
// normalization keeps the archive deterministic.
func writeDirToTar(tw *tar.Writer, hostDir, prefix string) error {
	return filepath.WalkDir(hostDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(hostDir, path)
		if err != nil {
			return err
		}

		archivePath := filepath.ToSlash(filepath.Join(prefix, relPath))
		return writeTarEntry(tw, path, archivePath, d)
	})
}

// Writes a single file or directory entry to a tar writer.
func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, d os.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = archivePath
	normalizeHeader(header)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(hostPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}

	return nil
}

// Strips host-specific metadata from a tar header.
//
// Timestamps are pinned to the epoch and ownership is cleared, so archive
// bytes depend only on file names, modes, and contents. Extraction inside
// the container assigns ownership to the extracting identity.
func normalizeHeader(h *tar.Header) {
	h.ModTime = time.Unix(0, 0).UTC()
	h.AccessTime = time.Time{}
	h.ChangeTime = time.Time{}
	h.Uid = 0
	h.Gid = 0
	h.Uname = ""
	h.Gname = ""
	h.Format = tar.FormatPAX
}
