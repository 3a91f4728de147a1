// Package player spawns and tears down the external MJPEG decoder process.
// The engine treats the player as opaque: it only needs something reading
// the conduit and rendering frames in its own window.
package player

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"olympusview/internal/logger"
)

// How long a player gets to exit after the graceful stop signal before it
// is killed.
const terminateGrace = 300 * time.Millisecond

// Candidate is one external decoder executable to try
type Candidate struct {
	Name string
	Args []string
}

// DefaultCandidates returns the ordered launch list: mplayer first, ffplay
// as the fallback, both reading the MJPEG stream from the pipe.
func DefaultCandidates(pipePath string) []Candidate {
	return []Candidate{
		{
			Name: "mplayer",
			Args: []string{
				"-demuxer", "lavf",
				"-lavfdopts", "format=mjpeg",
				"-really-quiet",
				"-loop", "0",
				pipePath,
			},
		},
		{
			Name: "ffplay",
			Args: []string{
				"-f", "mjpeg",
				"-i", pipePath,
				"-loglevel", "warning",
				"-x", "800",
				"-y", "600",
			},
		},
	}
}

// Supervisor owns the player process handle. Spawn and Terminate may be
// called from the controller while the worker is running, so the handle is
// lock-protected.
type Supervisor struct {
	candidates []Candidate
	logPath    string

	mu   sync.Mutex
	cmd  *exec.Cmd
	name string
	done chan struct{}
}

// NewSupervisor creates a Supervisor for the given candidate list. Player
// output is redirected to logPath.
func NewSupervisor(candidates []Candidate, logPath string) *Supervisor {
	return &Supervisor{
		candidates: candidates,
		logPath:    logPath,
	}
}

// Spawn probes each candidate in order and launches the first one present.
// If no candidate launches, the per-candidate errors are aggregated.
func (s *Supervisor) Spawn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("player already running (pid %d)", s.cmd.Process.Pid)
	}

	var errs *multierror.Error
	for _, c := range s.candidates {
		path, err := exec.LookPath(c.Name)
		if err != nil {
			logger.Warn("Player", "%s not found in PATH", c.Name)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		logger.Info("Player", "%s found at %s", c.Name, path)

		if err := s.launch(c); err != nil {
			logger.Warn("Player", "Failed to start %s: %v", c.Name, err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		logger.Info("Player", "Started %s with PID %d", c.Name, s.cmd.Process.Pid)
		return nil
	}

	return fmt.Errorf("no video player could be started: %w", errs.ErrorOrNil())
}

// launch starts one candidate; caller holds the lock
func (s *Supervisor) launch(c Candidate) error {
	cmd := exec.Command(c.Name, c.Args...)

	if s.logPath != "" {
		logFile, err := os.Create(s.logPath)
		if err != nil {
			logger.Warn("Player", "Failed to create player log %s: %v", s.logPath, err)
		} else {
			cmd.Stdout = logFile
			cmd.Stderr = logFile
		}
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		// Reap the process; its exit status is not interpreted
		_ = cmd.Wait()
		close(done)
	}()

	s.cmd = cmd
	s.name = c.Name
	s.done = done
	return nil
}

// Running reports whether a spawned player is still alive
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Terminate stops the player: graceful stop signal, short grace period,
// forced kill if still alive. It then best-effort kills stray instances of
// the same executable by name, since a prior failed teardown can leave
// orphans holding the conduit open. The sweep is not scoped to our own PID
// and will hit unrelated instances of the same player.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	cmd, name, done := s.cmd, s.name, s.done
	s.cmd = nil
	s.name = ""
	s.done = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid
	logger.Info("Player", "Gracefully stopping %s (pid %d)", name, pid)
	if err := gracefulStop(cmd.Process); err != nil {
		logger.Warn("Player", "Graceful stop failed: %v", err)
	}

	select {
	case <-done:
		logger.Info("Player", "%s exited", name)
	case <-time.After(terminateGrace):
		logger.Info("Player", "%s still running, killing", name)
		if err := cmd.Process.Kill(); err != nil {
			logger.Warn("Player", "Kill failed: %v", err)
		}
		<-done
	}

	logger.Info("Player", "Cleaning up stray %s instances", name)
	killStray(name)
}
