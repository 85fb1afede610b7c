//go:build unix

package stage

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in a new process group whose id equals its
// pid so the whole group can be signalled.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
