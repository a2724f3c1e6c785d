package fscopy

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Readlink reads the target of the symlink at path. The buffer is regrown
// until the result fits strictly inside it; a read that fills the buffer is
// ambiguous and triggers a retry, so long targets are never truncated.
func Readlink(path string) (string, error) {
	for size := 128; ; size <<= 1 {
		buf := make([]byte, size)
		n, err := unix.Readlink(path, buf)
		if err != nil {
			return "", fmt.Errorf("readlink %s: %w", path, err)
		}
		if n < size {
			return string(buf[:n]), nil
		}
	}
}
