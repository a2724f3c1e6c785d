package fscopy_test

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetersen/treecp/internal/fscopy"
)

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestDataBasic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	data := []byte("hello, treecp!")
	writeTestFile(t, src, data)

	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	defer out.Close()

	n, err := fscopy.Data(in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDataLarge(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	// 1 MiB — larger than the copy buffer, forcing multiple chunks.
	data := make([]byte, 1<<20)
	_, err := rand.Read(data)
	require.NoError(t, err)
	writeTestFile(t, src, data)

	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	defer out.Close()

	n, err := fscopy.Data(in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDataEmpty(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, nil)

	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	defer out.Close()

	n, err := fscopy.Data(in, out)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDataResumesMidFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("AAAA_BBBB"))

	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()

	// Data copies "all remaining bytes": consume the first 5 first.
	_, err = in.Read(make([]byte, 5))
	require.NoError(t, err)

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	defer out.Close()

	n, err := fscopy.Data(in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("BBBB"), got)
}

func TestContentsTruncatesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("short"))
	writeTestFile(t, dst, []byte("much longer pre-existing content"))

	require.NoError(t, fscopy.Contents(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), got)
}

func TestContentsCreatesMissing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, []byte("payload"))

	require.NoError(t, fscopy.Contents(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestContentsMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := fscopy.Contents(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	require.Error(t, err)
}
