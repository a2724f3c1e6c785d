package fscopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

const bufferSize = 64 * 1024

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// Data transfers all remaining bytes from src to dst using a pooled
// fixed-size buffer, looping on partial writes until each chunk is fully
// flushed. It returns the byte count written and succeeds only once src is
// exhausted with no write error. Both descriptors stay owned by the caller
// and are not closed.
func Data(src, dst *os.File) (int64, error) {
	return data(context.Background(), src, dst, nil)
}

func data(ctx context.Context, src, dst *os.File, limiter *rate.Limiter) (int64, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := waitQuota(ctx, limiter, n); err != nil {
					return total, err
				}
			}
			written := 0
			for written < n {
				w, werr := dst.Write(buf[written:n])
				if werr != nil {
					return total + int64(written), werr
				}
				written += w
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// waitQuota blocks until the limiter grants n bytes. Reads can exceed the
// limiter burst, so oversized chunks are split across waits. A limiter with
// no burst at all cannot make progress; WaitN surfaces that as an error
// instead of spinning.
func waitQuota(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()
	if burst < 1 {
		burst = 1
	}
	for n > 0 {
		chunk := min(n, burst)
		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Contents copies src's byte content over dst, creating dst if absent and
// truncating any existing content. No attributes are carried over and no
// existing entry is removed first.
func Contents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := Data(in, out); err != nil {
		out.Close()
		return fmt.Errorf("copy data to %s: %w", dst, err)
	}
	return out.Close()
}

// copyPath byte-copies the regular file (or symlink target) at src into a
// freshly created dst. The create is exclusive: dst was removed by the
// caller, and a path recreated concurrently must not be clobbered.
func copyPath(ctx context.Context, src, dst string, limiter *rate.Limiter) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}

	n, err := data(ctx, in, out, limiter)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("copy data to %s: %w", dst, err)
	}
	return n, out.Close()
}
