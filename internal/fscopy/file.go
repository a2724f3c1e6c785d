package fscopy

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// File copies the single filesystem entry at src to dst. Regular files,
// symlinks, block and character devices and FIFOs are supported; sockets
// and directories are rejected. Any existing entry at dst is removed first.
// With FollowSymlinks set a symlink source is dereferenced and copied as a
// regular file; otherwise an identical symlink is recreated. PreserveAttrs
// and PreserveXattrs apply after the entry is created; either failing fails
// the call.
func File(src, dst string, flags Flags) error {
	defer clearUmask()()

	if err := unix.Unlink(dst); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("remove old file %s: %w", dst, err)
	}

	var st unix.Stat_t
	var err error
	if flags&FollowSymlinks != 0 {
		err = unix.Stat(src, &st)
	} else {
		err = unix.Lstat(src, &st)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFBLK:
		if err := unix.Mknod(dst, unix.S_IFBLK|0o700, int(st.Rdev)); err != nil {
			return fmt.Errorf("create block device %s: %w", dst, err)
		}

	case unix.S_IFCHR:
		if err := unix.Mknod(dst, unix.S_IFCHR|0o700, int(st.Rdev)); err != nil {
			return fmt.Errorf("create character device %s: %w", dst, err)
		}

	case unix.S_IFIFO:
		if err := unix.Mkfifo(dst, 0o700); err != nil {
			return fmt.Errorf("create fifo %s: %w", dst, err)
		}

	case unix.S_IFLNK:
		// Only reachable when not following symlinks; a followed link
		// stats as its target's type.
		target, err := Readlink(src)
		if err != nil {
			return err
		}
		if err := unix.Symlink(target, dst); err != nil {
			return fmt.Errorf("create symlink %s: %w", dst, err)
		}

	case unix.S_IFREG:
		if _, err := copyPath(context.Background(), src, dst, nil); err != nil {
			return err
		}

	case unix.S_IFSOCK:
		return fmt.Errorf("%s: cannot copy socket", src)

	case unix.S_IFDIR:
		return fmt.Errorf("%s: cannot copy directory", src)
	}

	if flags&PreserveAttrs != 0 {
		if err := Attrs(src, dst); err != nil {
			return fmt.Errorf("copy attributes to %s: %w", dst, err)
		}
	}
	if flags&PreserveXattrs != 0 {
		if err := Xattrs(src, dst); err != nil {
			return fmt.Errorf("copy xattrs to %s: %w", dst, err)
		}
	}

	return nil
}
