package fscopy

import "golang.org/x/sys/unix"

// clearUmask zeroes the process file-creation mask so that explicit mode
// bits are honored exactly, and returns a func that restores the saved
// mask. Callers defer the restore so it runs on every exit path.
func clearUmask() (restore func()) {
	old := unix.Umask(0)
	return func() { unix.Umask(old) }
}
