package types

import "time"

// Time is a (sec, nanosec) pair as carried by the simulator and FSM headers.
type Time struct {
	Sec     int64 `cbor:"sec"`
	Nanosec int32 `cbor:"nanosec"`
}

// TimeFromDuration splits d into a normalized Time (0 <= Nanosec < 1e9).
func TimeFromDuration(d time.Duration) Time {
	sec := int64(d / time.Second)
	nsec := int64(d % time.Second)
	if nsec < 0 {
		sec--
		nsec += int64(time.Second)
	}
	return Time{Sec: sec, Nanosec: int32(nsec)}
}

// Duration converts t back into a time.Duration since the epoch of its clock.
func (t Time) Duration() time.Duration {
	return time.Duration(t.Sec)*time.Second + time.Duration(t.Nanosec)
}
