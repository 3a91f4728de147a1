package rtpjpeg

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// packet describes one datagram to build for the assembler. Version is
// always 2 unless overridden; payload type defaults to 96.
type packet struct {
	version  uint8
	padding  bool
	ext      bool
	cc       uint8
	marker   bool
	pt       uint8
	seq      uint16
	frame    uint32
	extWords int
	payload  []byte
}

func (p packet) bytes(t *testing.T) []byte {
	t.Helper()

	version := p.version
	if version == 0 {
		version = 2
	}
	pt := p.pt
	if pt == 0 {
		pt = 96
	}

	b0 := version << 6
	if p.padding {
		b0 |= 1 << 5
	}
	if p.ext {
		b0 |= 1 << 4
	}
	b0 |= p.cc & 0x0F

	b1 := pt & 0x7F
	if p.marker {
		b1 |= 1 << 7
	}

	buf := []byte{b0, b1}
	buf = binary.BigEndian.AppendUint16(buf, p.seq)
	buf = binary.BigEndian.AppendUint32(buf, p.frame)
	buf = binary.BigEndian.AppendUint32(buf, 0) // SSRC

	for i := uint8(0); i < p.cc; i++ {
		buf = binary.BigEndian.AppendUint32(buf, 0)
	}

	if p.ext {
		buf = binary.BigEndian.AppendUint16(buf, 0x5555) // profile, camera-specific
		buf = binary.BigEndian.AppendUint16(buf, uint16(p.extWords))
		for i := 0; i < p.extWords*4; i++ {
			buf = append(buf, 0)
		}
	}

	return append(buf, p.payload...)
}

func feed(t *testing.T, a *Assembler, p packet) (Outcome, []byte) {
	t.Helper()
	outcome, frame := a.Feed(p.bytes(t))
	if frame == nil {
		return outcome, nil
	}
	return outcome, frame.Data
}

func TestAssembleSingleFrame(t *testing.T) {
	a := NewAssembler()

	out, _ := feed(t, a, packet{ext: true, seq: 100, frame: 7, payload: []byte{0xFF, 0xD8, 0x01}})
	if out != OutcomeContinued {
		t.Fatalf("first packet outcome = %v, want continued", out)
	}
	out, _ = feed(t, a, packet{seq: 101, frame: 7, payload: []byte{0x02}})
	if out != OutcomeContinued {
		t.Fatalf("middle packet outcome = %v, want continued", out)
	}
	out, data := feed(t, a, packet{marker: true, seq: 102, frame: 7, payload: []byte{0x03}})
	if out != OutcomeCompleted {
		t.Fatalf("last packet outcome = %v, want completed", out)
	}

	want := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03}
	if !bytes.Equal(data, want) {
		t.Fatalf("frame bytes = %v, want %v", data, want)
	}
	if a.Assembling() {
		t.Fatal("assembler still assembling after completed frame")
	}
}

func TestFrameIDFromTimestampField(t *testing.T) {
	a := NewAssembler()

	feed(t, a, packet{ext: true, seq: 10, frame: 0xDEADBEEF, payload: []byte{0xFF, 0xD8}})
	_, frame := a.Feed(packet{marker: true, seq: 11, frame: 0xDEADBEEF, payload: []byte{0x00}}.bytes(t))
	if frame == nil {
		t.Fatal("expected completed frame")
	}
	if frame.FrameID != 0xDEADBEEF {
		t.Fatalf("frame id = %#x, want 0xDEADBEEF", frame.FrameID)
	}
}

func TestSequenceGapResets(t *testing.T) {
	a := NewAssembler()

	feed(t, a, packet{ext: true, seq: 100, frame: 7, payload: []byte{0xFF, 0xD8, 0x01}})

	// Middle packet with seq 101 lost; the last packet arrives at 102
	out, data := feed(t, a, packet{marker: true, seq: 102, frame: 7, payload: []byte{0x03}})
	if out != OutcomeReset {
		t.Fatalf("gap outcome = %v, want reset", out)
	}
	if data != nil {
		t.Fatal("gap produced a frame")
	}

	// A clean triple still assembles after the reset
	feed(t, a, packet{ext: true, seq: 200, frame: 8, payload: []byte{0xFF, 0xD8, 0x0A}})
	feed(t, a, packet{seq: 201, frame: 8, payload: []byte{0x0B}})
	out, data = feed(t, a, packet{marker: true, seq: 202, frame: 8, payload: []byte{0x0C}})
	if out != OutcomeCompleted {
		t.Fatalf("post-reset outcome = %v, want completed", out)
	}
	want := []byte{0xFF, 0xD8, 0x0A, 0x0B, 0x0C}
	if !bytes.Equal(data, want) {
		t.Fatalf("post-reset frame = %v, want %v", data, want)
	}
}

func TestFrameIDMismatchResets(t *testing.T) {
	a := NewAssembler()

	feed(t, a, packet{ext: true, seq: 100, frame: 7, payload: []byte{0xFF, 0xD8}})
	out, _ := feed(t, a, packet{seq: 101, frame: 9, payload: []byte{0x01}})
	if out != OutcomeReset {
		t.Fatalf("mismatched frame id outcome = %v, want reset", out)
	}
}

func TestMissingSOIDiscardsFrame(t *testing.T) {
	a := NewAssembler()

	feed(t, a, packet{ext: true, seq: 100, frame: 7, payload: []byte{0x00, 0x01}})
	feed(t, a, packet{seq: 101, frame: 7, payload: []byte{0x02}})
	out, data := feed(t, a, packet{marker: true, seq: 102, frame: 7, payload: []byte{0x03}})
	if out != OutcomeReset {
		t.Fatalf("missing SOI outcome = %v, want reset", out)
	}
	if data != nil {
		t.Fatal("invalid frame was emitted")
	}
}

func TestReentrantFirstPacket(t *testing.T) {
	a := NewAssembler()

	feed(t, a, packet{ext: true, seq: 100, frame: 7, payload: []byte{0xFF, 0xD8, 0x01}})
	feed(t, a, packet{seq: 101, frame: 7, payload: []byte{0x02}})

	// A new frame starts before frame 7 finished: the partial buffer is
	// dropped and assembly restarts on frame 8
	out, _ := feed(t, a, packet{ext: true, seq: 200, frame: 8, payload: []byte{0xFF, 0xD8, 0x0A}})
	if out != OutcomeReset {
		t.Fatalf("re-entrant first packet outcome = %v, want reset", out)
	}
	if !a.Assembling() {
		t.Fatal("assembler did not restart on the new frame")
	}

	out, data := feed(t, a, packet{marker: true, seq: 201, frame: 8, payload: []byte{0x0B}})
	if out != OutcomeCompleted {
		t.Fatalf("new frame outcome = %v, want completed", out)
	}
	want := []byte{0xFF, 0xD8, 0x0A, 0x0B}
	if !bytes.Equal(data, want) {
		t.Fatalf("new frame = %v, want %v (old frame bytes leaked)", data, want)
	}
}

func TestNonVideoPacketsIgnored(t *testing.T) {
	a := NewAssembler()

	// Wrong payload type and wrong version are not part of the stream
	out, _ := feed(t, a, packet{ext: true, seq: 1, frame: 1, pt: 97, payload: []byte{0xFF, 0xD8}})
	if out != OutcomeIgnored {
		t.Fatalf("wrong payload type outcome = %v, want ignored", out)
	}

	// Mid-assembly they must not disturb state either
	feed(t, a, packet{ext: true, seq: 100, frame: 7, payload: []byte{0xFF, 0xD8}})
	out, _ = feed(t, a, packet{seq: 101, frame: 7, pt: 97, payload: []byte{0x01}})
	if out != OutcomeIgnored {
		t.Fatalf("mid-assembly outcome = %v, want ignored", out)
	}
	out, data := feed(t, a, packet{marker: true, seq: 101, frame: 7, payload: []byte{0x01}})
	if out != OutcomeCompleted {
		t.Fatalf("outcome after ignored packet = %v, want completed", out)
	}
	if !bytes.Equal(data, []byte{0xFF, 0xD8, 0x01}) {
		t.Fatalf("unexpected frame bytes %v", data)
	}
}

func TestTruncatedDatagramIgnored(t *testing.T) {
	a := NewAssembler()

	out, frame := a.Feed([]byte{0x80, 0x60, 0x00})
	if out != OutcomeIgnored || frame != nil {
		t.Fatalf("truncated datagram outcome = %v, frame = %v", out, frame)
	}
}

func TestLargeFrameAssembly(t *testing.T) {
	a := NewAssembler()

	// Push the assembly buffer well past its retained capacity, then check
	// that a following frame still assembles cleanly
	chunk := make([]byte, 60*1024)
	for i := range chunk {
		chunk[i] = byte(i)
	}

	first := append([]byte{0xFF, 0xD8}, chunk...)
	feed(t, a, packet{ext: true, seq: 0, frame: 1, payload: first})
	seq := uint16(1)
	for ; seq < 10; seq++ {
		if out, _ := feed(t, a, packet{seq: seq, frame: 1, payload: chunk}); out != OutcomeContinued {
			t.Fatalf("packet %d outcome = %v, want continued", seq, out)
		}
	}
	out, data := feed(t, a, packet{marker: true, seq: seq, frame: 1, payload: chunk})
	if out != OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", out)
	}
	if want := 2 + 11*len(chunk); len(data) != want {
		t.Fatalf("frame size = %d, want %d", len(data), want)
	}

	feed(t, a, packet{ext: true, seq: 100, frame: 2, payload: []byte{0xFF, 0xD8, 0x01}})
	out, data = feed(t, a, packet{marker: true, seq: 101, frame: 2, payload: []byte{0x02}})
	if out != OutcomeCompleted {
		t.Fatalf("follow-up outcome = %v, want completed", out)
	}
	if !bytes.Equal(data, []byte{0xFF, 0xD8, 0x01, 0x02}) {
		t.Fatalf("follow-up frame = %v", data)
	}
}

func TestExtensionLengthOffsetsPayload(t *testing.T) {
	a := NewAssembler()

	// Two extension words between the header and the payload
	feed(t, a, packet{ext: true, extWords: 2, seq: 50, frame: 3, payload: []byte{0xFF, 0xD8, 0x42}})
	out, data := feed(t, a, packet{marker: true, seq: 51, frame: 3, payload: []byte{0x43}})
	if out != OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", out)
	}
	want := []byte{0xFF, 0xD8, 0x42, 0x43}
	if !bytes.Equal(data, want) {
		t.Fatalf("frame = %v, want %v (extension bytes leaked into payload?)", data, want)
	}
}
