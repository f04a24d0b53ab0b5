//go:build linux

package simclock

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// sleeps longer than this go through the runtime timer so they can be
// interrupted by ctx.
const nanosleepLimit = 50 * time.Millisecond

// MonotonicClock reads CLOCK_MONOTONIC and sleeps with nanosleep.
type MonotonicClock struct{}

func (MonotonicClock) Now() time.Duration {
	var ts unix.Timespec
	// CLOCK_MONOTONIC is always available on Linux.
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return time.Duration(ts.Nano())
}

func (MonotonicClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if d > nanosleepLimit {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		return
	}

	ts := unix.NsecToTimespec(int64(d))
	for {
		err := unix.Nanosleep(&ts, &ts)
		if !errors.Is(err, unix.EINTR) || ctx.Err() != nil {
			return
		}
	}
}
