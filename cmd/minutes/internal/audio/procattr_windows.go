//go:build windows

package audio

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
