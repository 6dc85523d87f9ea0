//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// detach runs the command in its own process group so that terminal signals
// sent to simsweep do not reach the simulator.
func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
