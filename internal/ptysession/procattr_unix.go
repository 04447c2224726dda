//go:build !windows && !linux

package ptysession

import (
	"os/exec"
	"syscall"
)

// setProcGroup runs cmd in its own process group so killProcessGroup can
// reap every descendant it spawns (shell wrappers, pagers) together.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
