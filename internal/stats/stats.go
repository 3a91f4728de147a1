package stats

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats holds the shared counters updated by the stream worker and read by
// the UI and the Prometheus exporter. Every field is last-writer-wins; no
// lock is ever held across I/O.
type Stats struct {
	PacketsReceived atomic.Uint64
	FramesCompleted atomic.Uint64
	FramesDropped   atomic.Uint64 // Dropped by load shedding or conduit failure
	AssemblyResets  atomic.Uint64

	LastFrameBytes atomic.Uint64
	lastFrameUnix  atomic.Int64 // UnixNano of the last completed frame

	ConduitResets atomic.Uint64 // Proactive and recovery reopens

	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordingBytes  atomic.Uint64
	RecordingFrames atomic.Uint64

	registry *prometheus.Registry
}

// Snapshot is a point-in-time copy of the counters for the UI's poller.
type Snapshot struct {
	PacketsReceived uint64
	FramesCompleted uint64
	FramesDropped   uint64
	LastFrameBytes  uint64
	SinceLastFrame  time.Duration
	ConduitResets   uint64
	RecordingActive bool
}

// New creates a new Stats instance with Prometheus collectors
func New() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
	}
	s.registerPrometheusMetrics()
	return s
}

func (s *Stats) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		read func() float64
	}{
		{"liveview_packets_received_total", "Total UDP datagrams received",
			func() float64 { return float64(s.PacketsReceived.Load()) }},
		{"liveview_frames_completed_total", "Total JPEG frames assembled",
			func() float64 { return float64(s.FramesCompleted.Load()) }},
		{"liveview_frames_dropped_total", "Total frames dropped before the player",
			func() float64 { return float64(s.FramesDropped.Load()) }},
		{"liveview_assembly_resets_total", "Total frame assembly resets",
			func() float64 { return float64(s.AssemblyResets.Load()) }},
		{"liveview_last_frame_bytes", "Size of the last completed frame",
			func() float64 { return float64(s.LastFrameBytes.Load()) }},
		{"liveview_conduit_resets_total", "Total player conduit reopens",
			func() float64 { return float64(s.ConduitResets.Load()) }},
		{"liveview_recording_active", "Recording active (0=inactive, 1=active)",
			func() float64 { return float64(s.RecordingActive.Load()) }},
		{"liveview_recording_bytes", "Total bytes written to the recording file",
			func() float64 { return float64(s.RecordingBytes.Load()) }},
		{"liveview_recording_frames", "Total frames written to the recording file",
			func() float64 { return float64(s.RecordingFrames.Load()) }},
	}

	for _, g := range gauges {
		s.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.read,
		))
	}
}

// MarkFrame records a completed frame of the given size
func (s *Stats) MarkFrame(size int) {
	s.FramesCompleted.Add(1)
	s.LastFrameBytes.Store(uint64(size))
	s.lastFrameUnix.Store(time.Now().UnixNano())
}

// SinceLastFrame returns the time elapsed since the last completed frame.
// Returns zero if no frame has completed yet.
func (s *Stats) SinceLastFrame() time.Duration {
	last := s.lastFrameUnix.Load()
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

// Snapshot returns a copy of the counters for display
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PacketsReceived: s.PacketsReceived.Load(),
		FramesCompleted: s.FramesCompleted.Load(),
		FramesDropped:   s.FramesDropped.Load(),
		LastFrameBytes:  s.LastFrameBytes.Load(),
		SinceLastFrame:  s.SinceLastFrame(),
		ConduitResets:   s.ConduitResets.Load(),
		RecordingActive: s.RecordingActive.Load() == 1,
	}
}

// Handler returns the Prometheus HTTP handler
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (s *Stats) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	return http.ListenAndServe(addr, mux)
}
