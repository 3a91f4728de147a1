package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"olympusview/internal/camera"
	"olympusview/internal/logger"
	"olympusview/internal/player"
	"olympusview/internal/recorder"
	"olympusview/internal/session"
	"olympusview/internal/sink"
	"olympusview/internal/stats"
)

var (
	// Command-line flags
	cameraURL    = flag.String("camera", "http://192.168.0.10", "Camera base URL")
	udpPort      = flag.Int("port", 65001, "Local UDP port for the video stream")
	fallbackPort = flag.Int("fallback-port", 65002, "UDP port tried when the primary is taken")
	pipePath     = flag.String("pipe", "olympus_stream.pipe", "Named pipe handed to the player")
	playerLog    = flag.String("player-log", "player_log.txt", "File capturing player output")
	recordPath   = flag.String("record-path", "./recordings", "Recording output path")
	metricsAddr  = flag.String("metrics", ":9090", "Metrics server address")
	noCamera     = flag.Bool("no-camera", false, "Skip camera control (stream already established)")
	logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor     = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("Main", "Olympus live view client starting")

	st := stats.New()
	go func() {
		logger.Info("Main", "Starting metrics server on %s", *metricsAddr)
		if err := st.StartServer(*metricsAddr); err != nil {
			logger.Error("Main", "Metrics server error: %v", err)
		}
	}()

	deps := session.Deps{Stats: st}

	if !*noCamera {
		cam := camera.NewClient(*cameraURL)
		if err := cam.Connect(); err != nil {
			log.Fatalf("Failed to connect to camera: %v", err)
		}
		deps.Camera = cam
	}

	if err := sink.CreatePipe(*pipePath); err != nil {
		log.Fatalf("Failed to create stream pipe: %v", err)
	}
	pipe := sink.NewPipe(*pipePath)
	deps.Sink = sink.NewWriter(pipe, st, sink.DefaultWriterConfig())

	deps.Player = player.NewSupervisor(player.DefaultCandidates(*pipePath), *playerLog)
	deps.Recorder = recorder.NewRecorder(*recordPath)

	sess := session.New(uint16(*udpPort), uint16(*fallbackPort), deps)
	if err := sess.Start(); err != nil {
		_ = pipe.Remove()
		log.Fatalf("Failed to start session: %v", err)
	}

	fmt.Println("Live view running. Commands: r = toggle recording, s = restart, p = stats, q = quit")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	runCommandLoop(sess, os.Stdin, sigChan)

	sess.Stop()
	if err := pipe.Remove(); err != nil {
		logger.Warn("Main", "Failed to remove pipe: %v", err)
	}
	logger.Info("Main", "Stopped")
}

// runCommandLoop reads single-letter commands from input until quit, end of
// input, or a signal. The scanner goroutine exits with the loop so a pending
// line never leaves it blocked behind.
func runCommandLoop(sess *session.Session, input io.Reader, sigChan <-chan os.Signal) {
	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case sig := <-sigChan:
			logger.Info("Main", "Received %v, shutting down", sig)
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			switch line {
			case "q", "quit":
				return

			case "r":
				recording, err := sess.ToggleRecording()
				switch {
				case err != nil:
					fmt.Printf("Recording error: %v\n", err)
				case recording:
					fmt.Println("Recording started (raw MJPEG, needs encoding for general players)")
				default:
					fmt.Println("Recording stopped")
				}

			case "s":
				if err := sess.Restart(); err != nil {
					fmt.Printf("Restart failed: %v\n", err)
				} else {
					fmt.Println("Stream restarted")
				}

			case "p":
				snap := sess.Stats()
				fmt.Printf("packets=%d frames=%d dropped=%d last_frame=%dKB since_last_frame=%v recording=%v\n",
					snap.PacketsReceived, snap.FramesCompleted, snap.FramesDropped,
					snap.LastFrameBytes/1024, snap.SinceLastFrame.Round(10*time.Millisecond), snap.RecordingActive)

			case "":
				// Ignore blank lines

			default:
				fmt.Println("Commands: r = toggle recording, s = restart, p = stats, q = quit")
			}
		}
	}
}
