// Package rtpjpeg assembles JPEG frames from the camera's RTP-like UDP
// stream. The wire format is structurally standard RTP (the frame identifier
// rides in the timestamp field, and the first packet of each frame carries an
// extension header), so parsing is delegated to pion/rtp and only the
// classification rules are local.
package rtpjpeg

import (
	"time"

	"github.com/pion/rtp"

	"olympusview/internal/logger"
	"olympusview/pkg/types"
)

// Video packets always carry payload type 96.
const payloadTypeVideo = 96

// Assembly buffer capacity management: keep the allocation across frames,
// but shrink it once it grows past maxRetainedCap.
const (
	initialBufCap  = 256 * 1024
	maxRetainedCap = 512 * 1024
)

// Outcome is the result of feeding one datagram to the Assembler.
type Outcome int

const (
	// OutcomeIgnored means the datagram is not part of the video stream
	// (wrong version or payload type). Assembly state is untouched.
	OutcomeIgnored Outcome = iota

	// OutcomeContinued means the packet was accepted into the current frame.
	OutcomeContinued

	// OutcomeCompleted means the packet finished a valid JPEG frame.
	OutcomeCompleted

	// OutcomeReset means the partial frame was discarded. Out-of-order
	// sequence, mismatched frame id, unexpected flags, or a completed
	// buffer missing the SOI marker all land here.
	OutcomeReset
)

// String returns the outcome name for logging
func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeContinued:
		return "continued"
	case OutcomeCompleted:
		return "completed"
	case OutcomeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Assembler accumulates one frame at a time. Any anomaly discards the
// partial buffer and waits for the next clean first packet; there is no
// out-of-order buffering or partial-frame recovery. Not safe for concurrent
// use; the stream worker owns it exclusively.
type Assembler struct {
	assembling  bool
	expectedSeq uint16
	frameID     uint32
	buf         []byte
}

// NewAssembler creates an Assembler in the idle state
func NewAssembler() *Assembler {
	return &Assembler{
		buf: make([]byte, 0, initialBufCap),
	}
}

// Feed classifies one datagram and advances frame assembly. On
// OutcomeCompleted the returned frame holds its own copy of the JPEG bytes;
// for every other outcome the frame is nil.
func (a *Assembler) Feed(datagram []byte) (Outcome, *types.JPEGFrame) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(datagram); err != nil {
		return OutcomeIgnored, nil
	}

	h := &pkt.Header
	if h.Version != 2 || h.PayloadType != payloadTypeVideo {
		// Not part of the video stream
		return OutcomeIgnored, nil
	}

	switch {
	case a.isFirstPacket(h):
		if a.assembling {
			// A new frame started before the previous one finished.
			// Drop the partial buffer and restart with this packet.
			a.reset()
			a.begin(h, pkt.Payload)
			return OutcomeReset, nil
		}
		a.begin(h, pkt.Payload)
		return OutcomeContinued, nil

	case a.isMiddlePacket(h):
		a.buf = append(a.buf, pkt.Payload...)
		a.expectedSeq = h.SequenceNumber + 1
		return OutcomeContinued, nil

	case a.isLastPacket(h):
		a.buf = append(a.buf, pkt.Payload...)
		frame := a.complete(h)
		if frame == nil {
			return OutcomeReset, nil
		}
		return OutcomeCompleted, frame

	default:
		if a.assembling {
			a.reset()
			return OutcomeReset, nil
		}
		return OutcomeIgnored, nil
	}
}

// First packet of a frame: extension header present, marker clear. The
// extension carries the payload offset (12 + 4 + 4*length words), which
// pion/rtp has already consumed by the time we see pkt.Payload.
func (a *Assembler) isFirstPacket(h *rtp.Header) bool {
	return !h.Padding && h.Extension && !h.Marker
}

func (a *Assembler) isMiddlePacket(h *rtp.Header) bool {
	return a.assembling &&
		!h.Padding && !h.Extension && len(h.CSRC) == 0 && !h.Marker &&
		h.SequenceNumber == a.expectedSeq && h.Timestamp == a.frameID
}

func (a *Assembler) isLastPacket(h *rtp.Header) bool {
	return a.assembling &&
		!h.Padding && !h.Extension && len(h.CSRC) == 0 && h.Marker &&
		h.SequenceNumber == a.expectedSeq && h.Timestamp == a.frameID
}

func (a *Assembler) begin(h *rtp.Header, payload []byte) {
	a.assembling = true
	a.expectedSeq = h.SequenceNumber + 1
	a.frameID = h.Timestamp
	a.buf = append(a.buf[:0], payload...)
}

// complete validates the assembled buffer and returns the frame, or nil if
// the buffer does not start with the JPEG SOI marker. Either way the
// assembler returns to idle.
func (a *Assembler) complete(h *rtp.Header) *types.JPEGFrame {
	var frame *types.JPEGFrame
	if !types.HasSOI(a.buf) {
		logger.Warn("Assembler", "Discarding frame %d: missing JPEG SOI marker (%d bytes)",
			a.frameID, len(a.buf))
	} else {
		data := make([]byte, len(a.buf))
		copy(data, a.buf)
		frame = &types.JPEGFrame{
			Data:      data,
			FrameID:   a.frameID,
			Timestamp: time.Now(),
		}
	}
	a.reset()
	return frame
}

func (a *Assembler) reset() {
	a.assembling = false
	a.buf = a.buf[:0]
	if cap(a.buf) > maxRetainedCap {
		a.buf = make([]byte, 0, initialBufCap)
	}
}

// Assembling reports whether a partial frame is in flight
func (a *Assembler) Assembling() bool {
	return a.assembling
}
