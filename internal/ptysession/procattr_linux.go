//go:build linux

package ptysession

import (
	"os/exec"
	"syscall"
)

// setProcGroup runs cmd in its own process group and additionally arms
// Pdeathsig, so the child is reaped if AgentMux itself crashes without
// reaching killSession.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
