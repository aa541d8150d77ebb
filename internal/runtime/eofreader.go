package runtime

import (
	"io"
	"sync"
)

// An [io.Reader] that reports when its underlying reader is exhausted.
//
// Used to learn when a stdin stream piped into a container process has been
// fully consumed. The eof channel closes exactly once, on the first
// [io.EOF]; other read errors leave it open.
type eofReader struct {
	r    io.Reader
	once sync.Once
	eof  chan struct{}
}

func newEOFReader(r io.Reader) *eofReader {
	return &eofReader{r: r, eof: make(chan struct{})}
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.once.Do(func() { close(e.eof) })
	}
	return n, err
}
