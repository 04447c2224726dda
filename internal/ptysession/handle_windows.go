//go:build windows

package ptysession

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/UserExistsError/conpty"
)

// windowsHandle wraps a Windows ConPTY pseudo-console.
type windowsHandle struct {
	cpty *conpty.ConPty
}

func (h *windowsHandle) Read(b []byte) (int, error)  { return h.cpty.Read(b) }
func (h *windowsHandle) Write(b []byte) (int, error) { return h.cpty.Write(b) }
func (h *windowsHandle) Close() error                { return h.cpty.Close() }

func (h *windowsHandle) Resize(cols, rows uint16) error {
	return h.cpty.Resize(int(cols), int(rows))
}

// startWithSize starts cmd under a ConPTY sized cols x rows. ConPTY manages
// process creation internally, so this builds a command line from cmd.Args
// and starts the process through it; cmd.Process is populated afterwards so
// callers can still use Kill/Wait/Pid on cmd.
func startWithSize(cmd *exec.Cmd, cols, rows int) (Handle, error) {
	cmdLine := buildCmdLine(cmd.Args)
	if len(cmd.Args) == 0 {
		cmdLine = escapeArg(cmd.Path)
	}

	opts := []conpty.ConPtyOption{conpty.ConPtyDimensions(cols, rows)}
	if cmd.Dir != "" {
		opts = append(opts, conpty.ConPtyWorkDir(cmd.Dir))
	}
	if cmd.Env != nil {
		opts = append(opts, conpty.ConPtyEnv(cmd.Env))
	}

	cpty, err := conpty.Start(cmdLine, opts...)
	if err != nil {
		return nil, err
	}

	pid := cpty.Pid()
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		_ = cpty.Close()
		return nil, fmt.Errorf("find conpty process %d: %w", pid, err)
	}
	cmd.Process = proc

	return &windowsHandle{cpty: cpty}, nil
}

func killProcessByPid(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

func buildCmdLine(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = escapeArg(a)
	}
	return strings.Join(parts, " ")
}

func escapeArg(a string) string {
	if !strings.ContainsAny(a, " \t\"") {
		return a
	}
	return `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
}
