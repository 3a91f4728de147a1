//go:build unix

package sink

import "golang.org/x/sys/unix"

func makeConduitFile(path string) error {
	return unix.Mkfifo(path, 0o666)
}
