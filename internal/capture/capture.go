// Package capture redirects the process-wide snippet output stream.
//
// Evaluators print to Stdout rather than os.Stdout. With swaps the stream's
// destination for an in-memory buffer for the duration of a call and always
// puts the previous destination back, including when the call panics.
package capture

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// Stdout is the process-wide stream snippet output is written to.
var Stdout = NewStream(os.Stdout)

// Stream is a writer whose destination can be swapped at runtime.
type Stream struct {
	mu  sync.Mutex
	dst io.Writer
}

// NewStream creates a stream writing to dst.
func NewStream(dst io.Writer) *Stream {
	if dst == nil {
		dst = io.Discard
	}
	return &Stream{dst: dst}
}

// Write forwards p to the current destination.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dst.Write(p)
}

// WriteString forwards str to the current destination.
func (s *Stream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Redirect points the stream at w and returns a func restoring the previous
// destination. Restores nest: each one reinstates exactly what it replaced.
func (s *Stream) Redirect(w io.Writer) (restore func()) {
	s.mu.Lock()
	prev := s.dst
	s.dst = w
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.dst = prev
			s.mu.Unlock()
		})
	}
}

// With runs fn while s is redirected into a buffer and returns what was
// written together with fn's error. Output written before a failure is kept.
func With(s *Stream, fn func() error) (string, error) {
	buf := &lockedBuffer{}
	restore := s.Redirect(buf)
	defer restore()

	err := fn()
	return buf.String(), err
}

// lockedBuffer guards a bytes.Buffer so goroutines spawned by fn can write.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
