//go:build windows

package sink

import "os"

// Windows has no mkfifo; a plain file stands in for the conduit, matching
// what players accept there.
func makeConduitFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
