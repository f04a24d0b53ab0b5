//go:build !linux

package simclock

import (
	"context"
	"time"
)

var origin = time.Now()

// MonotonicClock uses the runtime's monotonic reading where CLOCK_MONOTONIC
// is not reachable through x/sys/unix.
type MonotonicClock struct{}

func (MonotonicClock) Now() time.Duration {
	return time.Since(origin)
}

func (MonotonicClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
