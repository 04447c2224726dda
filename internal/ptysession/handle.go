// Package ptysession implements L1, the PTY Session Backend: it spawns and
// owns PTY processes and offers write, resize, a streamed onData callback, a
// snapshot of the last N visible rows, and kill. A Backend holds the live
// sessions; callers hold only weak references to sessions by name.
package ptysession

import "io"

// Handle abstracts PTY operations across Unix (creack/pty) and Windows
// (ConPTY).
type Handle interface {
	io.ReadWriteCloser
	// Resize changes the PTY window size.
	Resize(cols, rows uint16) error
}
