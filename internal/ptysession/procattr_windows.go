//go:build windows

package ptysession

import "os/exec"

// setProcGroup is a no-op on Windows: ConPTY owns process creation and
// console-group semantics are handled by conpty.Close().
func setProcGroup(cmd *exec.Cmd) {}

func killProcessGroup(pid int) error {
	return killProcessByPid(pid)
}

func terminateProcessGroup(pid int) error {
	return killProcessByPid(pid)
}
