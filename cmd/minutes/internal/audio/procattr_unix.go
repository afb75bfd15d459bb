//go:build !windows

package audio

import (
	"os/exec"
	"syscall"
)

// setProcessGroup detaches ffmpeg from the terminal's process group so a
// Ctrl-C reaches the session first and the session decides how to stop it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
