//go:build unix

package agent

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so termination
// reaches every process that inherited the stderr pipe, not just the direct
// child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate kills the child's process group. Falls back to killing the
// direct child when the group is already gone.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
