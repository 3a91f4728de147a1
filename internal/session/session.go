// Package session owns the live view lifecycle: the UDP socket, the worker
// goroutine that drives frame assembly, and the teardown of the player and
// conduit. The controller only flips flags and reads statistics; all socket
// and conduit I/O happens on the worker.
package session

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"olympusview/internal/logger"
	"olympusview/internal/recorder"
	"olympusview/internal/rtpjpeg"
	"olympusview/internal/stats"
)

const (
	// Worker receive timeout; stop latency is bounded by one interval
	readTimeout = 500 * time.Millisecond

	// Bounded wait for the worker to observe the stop flag
	joinTimeout = 2 * time.Second

	stallTimeout      = 10 * time.Second
	heartbeatInterval = 5 * time.Second

	maxDatagram = 65535
)

// State is the session lifecycle state
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// CameraControl is the out-of-band HTTP collaborator that starts and stops
// the camera's UDP stream.
type CameraControl interface {
	StartLiveView(port uint16) error
	StopLiveView() error
}

// PlayerSupervisor manages the external decoder process
type PlayerSupervisor interface {
	Spawn() error
	Terminate()
}

// FrameSink consumes completed JPEG frames
type FrameSink interface {
	Deliver(frame []byte) error
	Close() error
}

// Deps are the session's collaborators. Camera, Player, Sink and Recorder
// are optional; a nil collaborator is skipped.
type Deps struct {
	Camera   CameraControl
	Player   PlayerSupervisor
	Sink     FrameSink
	Recorder *recorder.Recorder
	Stats    *stats.Stats
}

// Session is one live view stream. At most one worker goroutine is alive
// per session; Start after Stop reuses the same value.
type Session struct {
	port         uint16
	fallbackPort uint16
	deps         Deps

	mu      sync.Mutex // guards lifecycle state and the fields below
	state   State
	conn    *net.UDPConn
	bound   uint16
	done    chan struct{}
	running *atomic.Bool
}

// New creates a stopped session
func New(port, fallbackPort uint16, deps Deps) *Session {
	if deps.Stats == nil {
		deps.Stats = stats.New()
	}
	return &Session{
		port:         port,
		fallbackPort: fallbackPort,
		deps:         deps,
	}
}

// Start binds the UDP port (falling back once on conflict), commands the
// camera to stream to it, spawns the player, and launches the worker. On
// any failure no partial state is left running.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return fmt.Errorf("session is %s, not stopped", s.state)
	}
	s.state = StateStarting

	conn, bound, err := s.bind()
	if err != nil {
		s.state = StateStopped
		return err
	}

	if s.deps.Camera != nil {
		if err := s.deps.Camera.StartLiveView(bound); err != nil {
			conn.Close()
			s.state = StateStopped
			return fmt.Errorf("failed to start live view: %w", err)
		}
	}

	if s.deps.Player != nil {
		if err := s.deps.Player.Spawn(); err != nil {
			if s.deps.Camera != nil {
				if serr := s.deps.Camera.StopLiveView(); serr != nil {
					logger.Warn("Stream", "Failed to stop live view after spawn failure: %v", serr)
				}
			}
			conn.Close()
			s.state = StateStopped
			return fmt.Errorf("failed to start player: %w", err)
		}
	}

	s.conn = conn
	s.bound = bound
	s.done = make(chan struct{})
	s.running = &atomic.Bool{}
	s.running.Store(true)
	s.state = StateRunning

	go s.worker(conn, s.running, s.done)

	logger.Info("Stream", "Session started on UDP port %d", bound)
	return nil
}

// bind attaches the UDP socket, retrying once on the fallback port
func (s *Session) bind() (*net.UDPConn, uint16, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(s.port)})
	if err == nil {
		logger.Info("Stream", "Bound UDP port %d", s.port)
		return conn, s.port, nil
	}
	logger.Error("Stream", "Failed to bind UDP port %d: %v", s.port, err)

	logger.Info("Stream", "Trying fallback port %d", s.fallbackPort)
	conn, ferr := net.ListenUDP("udp", &net.UDPAddr{Port: int(s.fallbackPort)})
	if ferr != nil {
		return nil, 0, fmt.Errorf("failed to bind UDP ports %d and %d: %w",
			s.port, s.fallbackPort, ferr)
	}
	logger.Info("Stream", "Bound fallback UDP port %d", s.fallbackPort)
	return conn, s.fallbackPort, nil
}

// Stop tears the session down: clears the run flag, joins the worker with a
// bounded wait, then stops the camera stream, player, sink and any active
// recording. Safe to call repeatedly and on a session that never started.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}
	s.state = StateStopping

	if s.running != nil {
		s.running.Store(false)
	}

	if s.done != nil {
		select {
		case <-s.done:
		case <-time.After(joinTimeout):
			// The worker holds no state beyond the loop; teardown proceeds
			logger.Warn("Stream", "Worker did not exit within %v, proceeding with teardown", joinTimeout)
		}
	}

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	if s.deps.Camera != nil {
		if err := s.deps.Camera.StopLiveView(); err != nil {
			logger.Warn("Stream", "Failed to stop live view: %v", err)
		}
	}

	if s.deps.Player != nil {
		s.deps.Player.Terminate()
	}

	if s.deps.Sink != nil {
		if err := s.deps.Sink.Close(); err != nil {
			logger.Warn("Stream", "Failed to close sink: %v", err)
		}
	}

	if s.deps.Recorder != nil && s.deps.Recorder.IsRecording() {
		if err := s.deps.Recorder.Stop(); err != nil {
			logger.Warn("Stream", "Failed to stop recording: %v", err)
		}
		s.deps.Stats.RecordingActive.Store(0)
	}

	s.done = nil
	s.running = nil
	s.state = StateStopped
	logger.Info("Stream", "Session stopped")
}

// Restart stops the session and starts it again on the same configuration
func (s *Session) Restart() error {
	logger.Info("Stream", "Restarting session")
	s.Stop()

	// Give the camera a moment before re-establishing the stream
	time.Sleep(500 * time.Millisecond)
	return s.Start()
}

// ToggleRecording starts or stops the raw MJPEG capture. Returns the new
// recording state.
func (s *Session) ToggleRecording() (bool, error) {
	if s.deps.Recorder == nil {
		return false, fmt.Errorf("no recorder configured")
	}

	if s.deps.Recorder.IsRecording() {
		if err := s.deps.Recorder.Stop(); err != nil {
			return true, err
		}
		s.deps.Stats.RecordingActive.Store(0)
		return false, nil
	}

	if err := s.deps.Recorder.Start(); err != nil {
		return false, err
	}
	s.deps.Stats.RecordingActive.Store(1)
	return true, nil
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the bound UDP port, zero when stopped
func (s *Session) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return 0
	}
	return s.bound
}

// Stats returns a snapshot of the stream counters
func (s *Session) Stats() stats.Snapshot {
	return s.deps.Stats.Snapshot()
}

// worker is the single goroutine doing socket I/O, reassembly and sink
// delivery. It exits within one receive timeout of the flag clearing.
func (s *Session) worker(conn *net.UDPConn, running *atomic.Bool, done chan struct{}) {
	defer close(done)

	logger.Info("Stream", "Worker started")

	buf := make([]byte, maxDatagram)
	asm := rtpjpeg.NewAssembler()
	st := s.deps.Stats

	lastActivity := time.Now()
	lastHeartbeat := time.Now()
	var intervalPackets, intervalFrames uint64

	for running.Load() {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			logger.Error("Stream", "Failed to set read deadline: %v", err)
			break
		}

		n, _, err := conn.ReadFromUDP(buf)
		switch {
		case err == nil:
			st.PacketsReceived.Add(1)
			intervalPackets++
			lastActivity = time.Now()
			s.handleDatagram(asm, buf[:n], &intervalFrames)

		case errors.Is(err, os.ErrDeadlineExceeded):
			// No data this interval; fall through to stall/heartbeat checks

		default:
			if running.Load() {
				logger.Error("Stream", "UDP receive error: %v", err)
			}
		}

		if time.Since(lastActivity) > stallTimeout {
			logger.Warn("Stream", "No packets received for %v, stream may be stalled", stallTimeout)
			lastActivity = time.Now() // avoid log spam
		}

		if elapsed := time.Since(lastHeartbeat); elapsed > heartbeatInterval {
			fps := float64(intervalFrames) / elapsed.Seconds()
			logger.Info("Stream", "Stream status: %d packets, %d frames (%.1f FPS), last frame: %dKB",
				intervalPackets, intervalFrames, fps, st.LastFrameBytes.Load()/1024)
			lastHeartbeat = time.Now()
			intervalPackets = 0
			intervalFrames = 0
		}
	}

	logger.Info("Stream", "Worker terminated: %d packets, %d frames total",
		st.PacketsReceived.Load(), st.FramesCompleted.Load())
}

func (s *Session) handleDatagram(asm *rtpjpeg.Assembler, datagram []byte, intervalFrames *uint64) {
	st := s.deps.Stats

	outcome, frame := asm.Feed(datagram)
	switch outcome {
	case rtpjpeg.OutcomeCompleted:
		st.MarkFrame(len(frame.Data))
		*intervalFrames++
		logger.Debug("Stream", "Frame %d complete: %d bytes", frame.FrameID, len(frame.Data))

		if s.deps.Recorder != nil && s.deps.Recorder.SendFrame(frame) {
			status := s.deps.Recorder.GetStatus()
			st.RecordingBytes.Store(status.BytesWritten)
			st.RecordingFrames.Store(status.FrameCount)
		}

		if s.deps.Sink != nil {
			if err := s.deps.Sink.Deliver(frame.Data); err != nil {
				logger.Error("Stream", "Sink delivery failed: %v", err)
			}
		}

	case rtpjpeg.OutcomeReset:
		st.AssemblyResets.Add(1)
		logger.Debug("Stream", "Frame assembly reset")
	}
}
