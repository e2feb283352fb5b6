//go:build windows

package dolt

import (
	"os"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows.
func setSysProcAttr(cmd *exec.Cmd) {}

func termSignal() os.Signal {
	return os.Kill
}
