// Package camera is the HTTP control client for the Olympus Air's CGI
// surface. It establishes and tears down the live view stream out-of-band;
// the video itself arrives over UDP and is handled by the session package.
package camera

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"olympusview/internal/logger"
)

// The camera only answers requests carrying its vendor user-agent.
const userAgent = "OlympusCameraKit"

// Pause between initialization commands; the firmware drops commands sent
// back-to-back.
const commandDelay = 300 * time.Millisecond

// Client issues CGI commands to the camera
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a camera client for the given base URL
// (e.g. "http://192.168.0.10").
func NewClient(baseURL string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Get issues one CGI request. The camera reports most errors in the body
// rather than the status code, so the status is logged but not validated.
func (c *Client) Get(endpoint string) error {
	url := c.baseURL + endpoint
	logger.Info("Camera", "Request: %s", url)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("camera request %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	logger.Info("Camera", "Response status: %s", resp.Status)
	return nil
}

// Connect runs the initialization sequence that puts the camera in rec mode
// and clears any live view left over from a previous session.
func (c *Client) Connect() error {
	steps := []string{
		"get_connectmode.cgi",
		"switch_cameramode.cgi?mode=rec",
		"get_state.cgi",
		"exec_takemisc.cgi?com=stopliveview",
	}

	for _, step := range steps {
		if err := c.Get(step); err != nil {
			return fmt.Errorf("camera initialization step %s failed: %w", step, err)
		}
		time.Sleep(commandDelay)
	}

	logger.Info("Camera", "Camera initialized")
	return nil
}

// StartLiveView commands the camera to begin sending UDP video to the given
// local port, then waits for the stream to spin up.
func (c *Client) StartLiveView(port uint16) error {
	endpoint := fmt.Sprintf("exec_takemisc.cgi?com=startliveview&port=%d", port)
	if err := c.Get(endpoint); err != nil {
		return fmt.Errorf("failed to start live view: %w", err)
	}

	// The camera needs a moment before the first packets flow
	time.Sleep(1 * time.Second)
	logger.Info("Camera", "Live view started on port %d", port)
	return nil
}

// StopLiveView commands the camera to stop the UDP stream
func (c *Client) StopLiveView() error {
	if err := c.Get("exec_takemisc.cgi?com=stopliveview"); err != nil {
		return fmt.Errorf("failed to stop live view: %w", err)
	}
	logger.Info("Camera", "Live view stopped")
	return nil
}
