package serial

import (
	"io"
	"sync"
)

// Loopback is one end of an in-memory port pair
type Loopback struct {
	r *io.PipeReader
	w *io.PipeWriter

	once sync.Once
}

// NewLoopback returns two connected ports. Bytes written to one are read
// from the other.
func NewLoopback() (*Loopback, *Loopback) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &Loopback{r: ar, w: aw}, &Loopback{r: br, w: bw}
}

func (l *Loopback) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *Loopback) Write(p []byte) (int, error) { return l.w.Write(p) }

// Close closes both directions
func (l *Loopback) Close() error {
	l.once.Do(func() {
		_ = l.w.Close()
		_ = l.r.Close()
	})
	return nil
}

// Flush is a no-op; pipes hold no buffered input
func (l *Loopback) Flush() error { return nil }
