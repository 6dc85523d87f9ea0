//go:build windows

package launcher

import (
	"os/exec"
	"syscall"
)

// detach starts the command in a new process group so Ctrl+C sent to
// simsweep does not reach the simulator.
func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}
