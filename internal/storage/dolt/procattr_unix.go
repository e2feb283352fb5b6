//go:build !windows

package dolt

import (
	"os"
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches the server into its own process group so it
// survives the parent's exit.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func termSignal() os.Signal {
	return syscall.SIGTERM
}
