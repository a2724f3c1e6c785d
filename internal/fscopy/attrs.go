package fscopy

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// permMask covers the permission bits plus set-uid, set-gid and sticky.
const permMask = unix.S_ISUID | unix.S_ISGID | unix.S_ISVTX |
	unix.S_IRWXU | unix.S_IRWXG | unix.S_IRWXO

// Attrs copies ownership and permission bits from src to dst. Source
// metadata is read link-aware (a symlink's own attributes, not its
// target's) and ownership is applied without dereferencing. Mode is only
// applied when the entry is not a symlink, since mode cannot be set on one.
func Attrs(src, dst string) error {
	var st unix.Stat_t
	if err := unix.Lstat(src, &st); err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	if err := unix.Lchown(dst, int(st.Uid), int(st.Gid)); err != nil {
		return fmt.Errorf("chown %s: %w", dst, err)
	}

	if st.Mode&unix.S_IFMT != unix.S_IFLNK {
		if err := unix.Chmod(dst, st.Mode&permMask); err != nil {
			return fmt.Errorf("chmod %s: %w", dst, err)
		}
	}

	return nil
}

// Xattrs copies the full extended attribute set from src to dst, both
// link-aware. A filesystem without xattr support is a no-op success, on
// either side. A per-attribute read failure is logged and that attribute
// skipped; any other failure to set an attribute on dst is fatal.
func Xattrs(src, dst string) error {
	size, err := unix.Llistxattr(src, nil)
	if err != nil {
		if errors.Is(err, unix.ENOTSUP) {
			slog.Debug("xattrs not supported on filesystem", "path", src)
			return nil
		}
		return fmt.Errorf("list xattrs %s: %w", src, err)
	}
	if size == 0 {
		return nil
	}

	// Names are a NUL-separated list.
	buf := make([]byte, size)
	size, err = unix.Llistxattr(src, buf)
	if err != nil {
		return fmt.Errorf("list xattrs %s: %w", src, err)
	}

	for _, name := range parseXattrNames(buf[:size]) {
		val, err := lgetxattr(src, name)
		if err != nil {
			slog.Warn("get xattr", "path", src, "name", name, "error", err)
			continue
		}

		if err := unix.Lsetxattr(dst, name, val, 0); err != nil {
			if errors.Is(err, unix.ENOTSUP) {
				slog.Debug("xattrs not supported on filesystem", "path", dst)
				return nil
			}
			return fmt.Errorf("set xattr %s on %s: %w", name, dst, err)
		}
	}

	return nil
}

func lgetxattr(path, name string) ([]byte, error) {
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func parseXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
