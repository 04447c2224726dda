//go:build !windows

package ptysession

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// unixHandle wraps a Unix PTY master file descriptor.
type unixHandle struct {
	f *os.File
}

func (h *unixHandle) Read(b []byte) (int, error)  { return h.f.Read(b) }
func (h *unixHandle) Write(b []byte) (int, error) { return h.f.Write(b) }
func (h *unixHandle) Close() error                { return h.f.Close() }

func (h *unixHandle) Resize(cols, rows uint16) error {
	return pty.Setsize(h.f, &pty.Winsize{Cols: cols, Rows: rows})
}

// startWithSize starts cmd attached to a freshly allocated Unix PTY sized
// cols x rows. pty.StartWithSize calls cmd.Start() internally.
func startWithSize(cmd *exec.Cmd, cols, rows int) (Handle, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, err
	}
	return &unixHandle{f: f}, nil
}
