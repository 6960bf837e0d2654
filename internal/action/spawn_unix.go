//go:build !windows

package action

import (
	"os/exec"
	"syscall"
)

// setProcAttr detaches the child from the launcher's process group.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
