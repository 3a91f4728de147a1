//go:build unix

package player

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

func gracefulStop(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// killStray terminates leftover instances of the player executable by name.
// Best effort: errors (including "no process found") are ignored.
func killStray(name string) {
	_ = exec.Command("killall", "-15", name).Run()
	time.Sleep(200 * time.Millisecond)
	_ = exec.Command("killall", "-9", name).Run()
}
