package fscopy_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mpetersen/treecp/internal/fscopy"
)

func TestFileRegular(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("regular file content"))

	require.NoError(t, fscopy.File(src, dst, 0))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("regular file content"), got)
}

func TestFileZeroBytes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, nil)

	require.NoError(t, fscopy.File(src, dst, 0))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestFileReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("new"))
	writeTestFile(t, dst, []byte("old content that is longer"))

	require.NoError(t, fscopy.File(src, dst, 0))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestFileSymlinkRecreated(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.Symlink("f1", src))

	require.NoError(t, fscopy.File(src, dst, 0))

	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, "f1", target)
}

func TestFileFollowSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, real, []byte("dereferenced"))
	require.NoError(t, os.Symlink(real, src))

	require.NoError(t, fscopy.File(src, dst, fscopy.FollowSymlinks))

	// Target must be a regular file with the link target's bytes.
	info, err := os.Lstat(dst)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("dereferenced"), got)
}

func TestFileDanglingSymlink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.Symlink("does/not/exist", src))

	require.NoError(t, fscopy.File(src, dst, 0))

	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, "does/not/exist", target)
}

func TestFileFIFO(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, unix.Mkfifo(src, 0o644))

	require.NoError(t, fscopy.File(src, dst, 0))

	var st unix.Stat_t
	require.NoError(t, unix.Lstat(dst, &st))
	assert.EqualValues(t, unix.S_IFIFO, st.Mode&unix.S_IFMT)
	// Initial permissions are owner-only until attributes are copied.
	assert.EqualValues(t, 0o700, st.Mode&0o7777)
}

func TestFileFIFOPreserveAttrs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, unix.Mkfifo(src, 0o644))
	require.NoError(t, unix.Chmod(src, 0o644))

	require.NoError(t, fscopy.File(src, dst, fscopy.PreserveAttrs))

	var st unix.Stat_t
	require.NoError(t, unix.Lstat(dst, &st))
	assert.EqualValues(t, 0o644, st.Mode&0o7777)
}

func TestFileBlockDevice(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("creating device nodes requires root")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	rdev := int(unix.Mkdev(7, 0)) // loop0
	require.NoError(t, unix.Mknod(src, unix.S_IFBLK|0o600, rdev))

	require.NoError(t, fscopy.File(src, dst, 0))

	var st unix.Stat_t
	require.NoError(t, unix.Lstat(dst, &st))
	assert.EqualValues(t, unix.S_IFBLK, st.Mode&unix.S_IFMT)
	assert.EqualValues(t, rdev, st.Rdev)
}

func TestFileCharDevice(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("creating device nodes requires root")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	rdev := int(unix.Mkdev(1, 3)) // /dev/null
	require.NoError(t, unix.Mknod(src, unix.S_IFCHR|0o600, rdev))

	require.NoError(t, fscopy.File(src, dst, 0))

	var st unix.Stat_t
	require.NoError(t, unix.Lstat(dst, &st))
	assert.EqualValues(t, unix.S_IFCHR, st.Mode&unix.S_IFMT)
	assert.EqualValues(t, rdev, st.Rdev)
}

func TestFileSocketRejected(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sock")
	dst := filepath.Join(dir, "dst")

	ln, err := net.Listen("unix", src)
	require.NoError(t, err)
	defer ln.Close()

	err = fscopy.File(src, dst, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket")

	_, statErr := os.Lstat(dst)
	assert.True(t, os.IsNotExist(statErr), "target must be left absent")
}

func TestFileDirectoryRejected(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "subdir")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.Mkdir(src, 0o755))

	err := fscopy.File(src, dst, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")

	_, statErr := os.Lstat(dst)
	assert.True(t, os.IsNotExist(statErr), "target must be left absent")
}

func TestFilePreserveAttrsMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("x"))
	require.NoError(t, os.Chmod(src, 0o751))

	require.NoError(t, fscopy.File(src, dst, fscopy.PreserveAttrs))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o751), info.Mode().Perm())
}

func TestFilePreserveXattrs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("x"))
	setTestXattr(t, src, "user.test", []byte("v"))

	require.NoError(t, fscopy.File(src, dst, fscopy.PreserveXattrs))

	got := make([]byte, 16)
	n, err := unix.Lgetxattr(dst, "user.test", got)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got[:n])
}

func TestFileUmaskRestored(t *testing.T) {
	old := unix.Umask(0o027)
	defer unix.Umask(old)

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("x"))

	require.NoError(t, fscopy.File(src, dst, 0))
	assert.Equal(t, 0o027, unix.Umask(0o027), "umask must be restored after a copy")

	// With the mask cleared during the copy, the explicit create mode is
	// honored exactly.
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o666), info.Mode().Perm())

	// Failure path restores it too.
	require.Error(t, fscopy.File(filepath.Join(dir, "missing"), dst, 0))
	assert.Equal(t, 0o027, unix.Umask(0o027))
}
