package fscopy_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mpetersen/treecp/internal/fscopy"
)

func TestAttrsCopiesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("a"))
	writeTestFile(t, dst, []byte("b"))

	require.NoError(t, os.Chmod(src, 0o741))
	require.NoError(t, fscopy.Attrs(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o741), info.Mode().Perm())
}

func TestAttrsCopiesSetgidBit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("a"))
	writeTestFile(t, dst, []byte("b"))

	require.NoError(t, unix.Chmod(src, 0o2755))
	require.NoError(t, fscopy.Attrs(src, dst))

	var st unix.Stat_t
	require.NoError(t, unix.Stat(dst, &st))
	assert.EqualValues(t, 0o2755, st.Mode&0o7777)
}

func TestAttrsSymlinkSourceSkipsChmod(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.Symlink("somewhere", src))
	require.NoError(t, os.Symlink("somewhere", dst))

	// A symlink's own attributes are used; mode is not applied since it
	// cannot be set on a symlink.
	require.NoError(t, fscopy.Attrs(src, dst))
}

func TestAttrsMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, dst, []byte("b"))

	err := fscopy.Attrs(filepath.Join(dir, "nope"), dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

// setTestXattr sets a user xattr on path, skipping the test when the
// filesystem backing TMPDIR has no xattr support.
func setTestXattr(t *testing.T, path, name string, value []byte) {
	t.Helper()
	err := unix.Lsetxattr(path, name, value, 0)
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EPERM) {
		t.Skipf("xattrs not supported on test filesystem: %v", err)
	}
	require.NoError(t, err)
}

func TestXattrsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("a"))
	writeTestFile(t, dst, []byte("b"))

	setTestXattr(t, src, "user.test", []byte("v"))
	setTestXattr(t, src, "user.other", []byte("long attribute value"))

	require.NoError(t, fscopy.Xattrs(src, dst))

	got := make([]byte, 64)
	n, err := unix.Lgetxattr(dst, "user.test", got)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got[:n])

	n, err = unix.Lgetxattr(dst, "user.other", got)
	require.NoError(t, err)
	assert.Equal(t, []byte("long attribute value"), got[:n])
}

func TestXattrsNoAttrsIsNoop(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("a"))
	writeTestFile(t, dst, []byte("b"))

	require.NoError(t, fscopy.Xattrs(src, dst))
}

func TestXattrsMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, dst, []byte("b"))

	err := fscopy.Xattrs(filepath.Join(dir, "nope"), dst)
	require.Error(t, err)
}
