package fscopy

import "golang.org/x/time/rate"

// NewBWLimiter creates a rate.Limiter that caps aggregate copy throughput
// to bytesPerSec. The burst is one buffer so natural read-size chunks pass
// without blocking. A non-positive rate returns nil, meaning unlimited.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := bufferSize
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
