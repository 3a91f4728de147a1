//go:build unix

package sink

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestPipeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.pipe")
	if err := CreatePipe(path); err != nil {
		t.Fatalf("CreatePipe() error = %v", err)
	}

	// Reader side, standing in for the player process
	read := make(chan []byte, 1)
	go func() {
		f, err := os.Open(path)
		if err != nil {
			read <- nil
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		read <- data
	}()

	p := NewPipe(path)
	if err := p.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	want := []byte{0xFF, 0xD8, 0x01, 0x02}
	if err := p.Write(want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := <-read; !bytes.Equal(got, want) {
		t.Fatalf("reader got %v, want %v", got, want)
	}

	if err := p.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("pipe file still present after Remove")
	}
}

func TestWriteBeforeOpenFails(t *testing.T) {
	p := NewPipe(filepath.Join(t.TempDir(), "stream.pipe"))
	if err := p.Write([]byte{0xFF}); err == nil {
		t.Fatal("Write() succeeded on an unopened pipe")
	}
}

func TestCreatePipeReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.pipe")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("failed to plant stale file: %v", err)
	}

	if err := CreatePipe(path); err != nil {
		t.Fatalf("CreatePipe() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat after CreatePipe: %v", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		t.Fatalf("CreatePipe left a regular file behind (mode %v)", info.Mode())
	}
}
