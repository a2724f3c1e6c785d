// Package fscopy copies filesystem entries and whole directory trees,
// preserving POSIX file types (regular files, symlinks, devices, FIFOs) and
// optionally ownership, permission bits and extended attributes.
//
// Everything operates on paths, so copies are subject to races with
// concurrent filesystem mutation. Tree copies do not cross mount-point
// boundaries. The process umask is saved and zeroed for the duration of
// every entry point; concurrent copy calls within one process would race on
// it and must be serialized by the caller.
package fscopy

// Flags is a bit set of copy options.
type Flags uint

const (
	// FollowSymlinks dereferences source symlinks instead of recreating
	// them. Not allowed for tree copies.
	FollowSymlinks Flags = 1 << iota
	// PreserveAttrs copies ownership and permission bits.
	PreserveAttrs
	// PreserveXattrs copies the extended attribute set.
	PreserveXattrs
	// ExcludeTopLevel copies the source directory's contents directly
	// into the target instead of nesting them under the source's name.
	ExcludeTopLevel
)
