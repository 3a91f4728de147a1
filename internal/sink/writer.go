// Package sink delivers completed JPEG frames to the external player over a
// byte conduit, pacing the frame rate and shedding load when frames arrive
// faster than the player drains them.
package sink

import (
	"errors"
	"syscall"
	"time"

	"olympusview/internal/logger"
	"olympusview/internal/stats"
)

// Conduit is a unidirectional byte channel to the external player process.
// The concrete mechanism (named pipe, plain file) is platform detail.
type Conduit interface {
	Write(p []byte) error
	Flush() error
	// Reset closes and reopens the channel. Long-lived pipes to external
	// players degrade in practice, so the Writer resets proactively.
	Reset() error
	Close() error
}

// WriterConfig tunes pacing and maintenance intervals
type WriterConfig struct {
	FrameInterval time.Duration // Minimum spacing between writes (~30 FPS)
	ShedThreshold time.Duration // Arrival spacing below which frames are shed
	ResetInterval time.Duration // Proactive conduit reopen period
	ReopenDelay   time.Duration // Pause before reopening a broken conduit
}

// DefaultWriterConfig returns the production tuning
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		FrameInterval: 33 * time.Millisecond,
		ShedThreshold: 20 * time.Millisecond,
		ResetInterval: 30 * time.Second,
		ReopenDelay:   100 * time.Millisecond,
	}
}

// Writer owns the conduit and applies pacing, load shedding, periodic
// maintenance resets and broken-pipe recovery on every delivery. It is used
// only from the stream worker goroutine.
type Writer struct {
	conduit Conduit
	st      *stats.Stats
	cfg     WriterConfig

	open      bool
	lastWrite time.Time
	lastReset time.Time
	shedCount uint64
}

// NewWriter creates a Writer over a conduit. The conduit starts closed and
// is opened (via Reset) on the first delivery, after the player process is
// up to read from it.
func NewWriter(c Conduit, st *stats.Stats, cfg WriterConfig) *Writer {
	return &Writer{
		conduit: c,
		st:      st,
		cfg:     cfg,
	}
}

// Deliver writes one frame to the conduit. Frames may be dropped by load
// shedding or while the conduit is being recovered; neither is an error.
// A non-nil error is only returned for conditions the caller cannot ride
// out, which in practice is never; delivery failures degrade to drops.
func (w *Writer) Deliver(frame []byte) error {
	// Open the conduit on first use, or recover one that failed to reopen
	// on a previous delivery
	if !w.open {
		if err := w.reopen(); err != nil {
			logger.Warn("Sink", "Conduit unavailable, dropping frame: %v", err)
			w.st.FramesDropped.Add(1)
			return nil
		}
	}

	// Load shedding: frames arriving faster than the player keeps up with
	// get dropped alternately to bound downstream buffering
	if !w.lastWrite.IsZero() && time.Since(w.lastWrite) < w.cfg.ShedThreshold {
		w.shedCount++
		if w.shedCount%2 == 1 {
			logger.Debug("Sink", "Shedding frame under load")
			w.st.FramesDropped.Add(1)
			return nil
		}
	} else {
		w.shedCount = 0
	}

	// Pacing: hold writes to the target frame interval
	if elapsed := time.Since(w.lastWrite); elapsed < w.cfg.FrameInterval {
		time.Sleep(w.cfg.FrameInterval - elapsed)
	}

	// Scheduled maintenance reset, independent of errors. A zero interval
	// disables it.
	if w.cfg.ResetInterval > 0 && time.Since(w.lastReset) > w.cfg.ResetInterval {
		logger.Info("Sink", "Periodic conduit reset")
		if err := w.conduit.Reset(); err != nil {
			logger.Error("Sink", "Periodic reset failed: %v", err)
			w.open = false
			w.st.FramesDropped.Add(1)
			return nil
		}
		w.lastReset = time.Now()
		w.st.ConduitResets.Add(1)
	}

	if err := w.conduit.Write(frame); err != nil {
		w.handleWriteError(err)
		w.st.FramesDropped.Add(1)
		return nil
	}
	if err := w.conduit.Flush(); err != nil {
		logger.Warn("Sink", "Failed to flush conduit: %v", err)
	}

	w.lastWrite = time.Now()
	return nil
}

// handleWriteError recovers broken-conduit conditions: close, short delay,
// reopen. A failed reopen leaves the writer closed; the next delivery
// retries.
func (w *Writer) handleWriteError(err error) {
	logger.Error("Sink", "Failed to write to conduit: %v", err)
	if !isBrokenConduit(err) {
		return
	}

	logger.Warn("Sink", "Conduit broken, attempting to reopen")
	_ = w.conduit.Close()
	w.open = false

	time.Sleep(w.cfg.ReopenDelay)
	if err := w.reopen(); err != nil {
		logger.Error("Sink", "Failed to reopen conduit: %v", err)
	}
}

func (w *Writer) reopen() error {
	if err := w.conduit.Reset(); err != nil {
		return err
	}
	// The very first open is not a reopen; only genuine recycles count
	if !w.lastReset.IsZero() {
		w.st.ConduitResets.Add(1)
	}
	w.open = true
	w.lastReset = time.Now()
	logger.Info("Sink", "Conduit open")
	return nil
}

// Close closes the underlying conduit
func (w *Writer) Close() error {
	w.open = false
	return w.conduit.Close()
}

func isBrokenConduit(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
