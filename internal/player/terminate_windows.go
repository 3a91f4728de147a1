//go:build windows

package player

import (
	"os"
	"os/exec"
	"strconv"
)

// No SIGTERM on Windows; taskkill without /F is the graceful equivalent.
func gracefulStop(p *os.Process) error {
	return exec.Command("taskkill", "/PID", strconv.Itoa(p.Pid)).Run()
}

func killStray(name string) {
	_ = exec.Command("taskkill", "/F", "/IM", name+".exe").Run()
}
