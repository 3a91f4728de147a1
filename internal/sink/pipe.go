package sink

import (
	"bufio"
	"fmt"
	"os"

	"olympusview/internal/logger"
)

// Pipe is the named-pipe Conduit used on the player boundary. The write end
// is opened after the player process is up; opening blocks until the player
// opens the read end.
type Pipe struct {
	path string
	f    *os.File
	bw   *bufio.Writer
}

// CreatePipe creates the pipe special file, replacing any stale one left by
// a previous run.
func CreatePipe(path string) error {
	if _, err := os.Stat(path); err == nil {
		logger.Info("Sink", "Removing existing pipe %s", path)
		if err := os.Remove(path); err != nil {
			logger.Warn("Sink", "Failed to remove existing pipe: %v", err)
		}
	}
	if err := makeConduitFile(path); err != nil {
		return fmt.Errorf("failed to create pipe %s: %w", path, err)
	}
	return nil
}

// NewPipe returns a Pipe whose write end is not yet open; the first Reset
// opens it.
func NewPipe(path string) *Pipe {
	return &Pipe{path: path}
}

func (p *Pipe) openFile() error {
	f, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open pipe %s: %w", p.path, err)
	}
	p.f = f
	p.bw = bufio.NewWriter(f)
	return nil
}

// Write buffers frame bytes into the pipe
func (p *Pipe) Write(b []byte) error {
	if p.f == nil {
		return fmt.Errorf("pipe %s is not open", p.path)
	}
	_, err := p.bw.Write(b)
	return err
}

// Flush pushes buffered bytes through to the player
func (p *Pipe) Flush() error {
	if p.bw == nil {
		return nil
	}
	return p.bw.Flush()
}

// Reset closes and reopens the write end
func (p *Pipe) Reset() error {
	_ = p.Close()
	return p.openFile()
}

// Close closes the write end. The pipe file itself stays until Remove.
func (p *Pipe) Close() error {
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	p.bw = nil
	return err
}

// Remove deletes the pipe special file
func (p *Pipe) Remove() error {
	return os.Remove(p.path)
}
