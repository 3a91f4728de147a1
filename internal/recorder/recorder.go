// Package recorder appends completed JPEG frames verbatim to a capture
// file. No container or encoding is applied: the output is a raw
// concatenation of JPEG buffers, playable as MJPEG.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"olympusview/internal/logger"
	"olympusview/pkg/types"
)

// Recorder writes frames to a timestamped file. Frames arrive on a buffered
// channel from the stream worker; a writer goroutine drains it so recording
// never blocks frame delivery to the player.
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	filename     string
	basePath     string
	recording    bool
	frameCount   uint64
	bytesWritten uint64
	startTime    time.Time
	frameChan    chan *types.JPEGFrame
	wg           sync.WaitGroup
}

// NewRecorder creates a recorder writing under basePath
func NewRecorder(basePath string) *Recorder {
	return &Recorder{
		basePath:  basePath,
		frameChan: make(chan *types.JPEGFrame, 60), // Buffer ~2 seconds
	}
}

// Start begins recording to a new file named after the capture time
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return fmt.Errorf("already recording")
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}

	filename := fmt.Sprintf("olympus_recording_%d.mjpeg", time.Now().Unix())
	path := filepath.Join(r.basePath, filename)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}

	r.file = file
	r.filename = filename
	r.recording = true
	r.frameCount = 0
	r.bytesWritten = 0
	r.startTime = time.Now()

	r.wg.Add(1)
	go r.writeFrames()

	logger.Info("Recorder", "Recording to %s", path)
	return nil
}

// Stop stops recording and closes the file
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return fmt.Errorf("not recording")
	}
	r.recording = false
	r.mu.Unlock()

	// Wait for the writer goroutine to drain and exit
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		if err := r.file.Sync(); err != nil {
			logger.Warn("Recorder", "Failed to sync recording: %v", err)
		}
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("failed to close recording file: %w", err)
		}
		r.file = nil
	}

	logger.Info("Recorder", "Recording stopped: %s (%d frames, %d bytes)",
		r.filename, r.frameCount, r.bytesWritten)
	return nil
}

// SendFrame hands a frame to the recorder without blocking. Returns false
// if recording is off or the buffer is full (frame dropped).
func (r *Recorder) SendFrame(frame *types.JPEGFrame) bool {
	r.mu.RLock()
	recording := r.recording
	r.mu.RUnlock()

	if !recording {
		return false
	}

	select {
	case r.frameChan <- frame:
		return true
	default:
		return false
	}
}

func (r *Recorder) writeFrames() {
	defer r.wg.Done()

	for {
		r.mu.RLock()
		recording := r.recording
		r.mu.RUnlock()

		if !recording {
			// Drain remaining frames before exiting
			for {
				select {
				case frame := <-r.frameChan:
					r.writeFrame(frame)
				default:
					return
				}
			}
		}

		select {
		case frame := <-r.frameChan:
			r.writeFrame(frame)
		case <-time.After(100 * time.Millisecond):
			// Re-check recording state
		}
	}
}

func (r *Recorder) writeFrame(frame *types.JPEGFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return
	}

	n, err := r.file.Write(frame.Data)
	if err != nil {
		logger.Warn("Recorder", "Write failed: %v", err)
		return
	}

	r.bytesWritten += uint64(n)
	r.frameCount++
}

// IsRecording returns true while a capture file is open
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// Status holds the current recording state
type Status struct {
	Recording    bool
	Filename     string
	FrameCount   uint64
	BytesWritten uint64
	Duration     time.Duration
}

// GetStatus returns a snapshot of the recording state
func (r *Recorder) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}

	return Status{
		Recording:    r.recording,
		Filename:     r.filename,
		FrameCount:   r.frameCount,
		BytesWritten: r.bytesWritten,
		Duration:     duration,
	}
}
