package types

import "time"

// JPEGFrame is one complete JPEG image assembled from the camera's UDP stream.
type JPEGFrame struct {
	Data      []byte    // Raw JPEG bytes, starting with the SOI marker
	FrameID   uint32    // Camera frame identifier (repurposed RTP timestamp field)
	Timestamp time.Time // Local completion time
}

// JPEG start-of-image marker bytes. A completed frame is valid only if its
// first two bytes match.
const (
	JPEGSOIFirst  = 0xFF
	JPEGSOISecond = 0xD8
)

// HasSOI reports whether data begins with the JPEG start-of-image marker.
func HasSOI(data []byte) bool {
	return len(data) >= 2 && data[0] == JPEGSOIFirst && data[1] == JPEGSOISecond
}