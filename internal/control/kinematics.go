package control

import "math"

// DefaultAttitudeGain is the proportional gain of QuaternionError in 1/s.
const DefaultAttitudeGain = 4.0

// QuaternionError returns a proportional attitude controller: the target
// roll/pitch/yaw (ZYX) is turned into a quaternion, the error rotation from q
// to it is taken on the short path, and its vector part scaled by 2*gain is
// the body-rate command.
func QuaternionError(gain float64) AttitudeErrorFunc {
	return func(q [4]float64, roll, pitch, yaw float64) [3]float64 {
		target := eulerToQuat(roll, pitch, yaw)
		conj := [4]float64{q[0], -q[1], -q[2], -q[3]}
		e := quatMul(conj, target)
		if e[0] < 0 {
			e = [4]float64{-e[0], -e[1], -e[2], -e[3]}
		}
		return [3]float64{2 * gain * e[1], 2 * gain * e[2], 2 * gain * e[3]}
	}
}

func eulerToQuat(roll, pitch, yaw float64) [4]float64 {
	sr, cr := math.Sincos(roll / 2)
	sp, cp := math.Sincos(pitch / 2)
	sy, cy := math.Sincos(yaw / 2)
	return [4]float64{
		cr*cp*cy + sr*sp*sy,
		sr*cp*cy - cr*sp*sy,
		cr*sp*cy + sr*cp*sy,
		cr*cp*sy - sr*sp*cy,
	}
}

// quatMul is the Hamilton product a*b, scalar first.
func quatMul(a, b [4]float64) [4]float64 {
	return [4]float64{
		a[0]*b[0] - a[1]*b[1] - a[2]*b[2] - a[3]*b[3],
		a[0]*b[1] + a[1]*b[0] + a[2]*b[3] - a[3]*b[2],
		a[0]*b[2] - a[1]*b[3] + a[2]*b[0] + a[3]*b[1],
		a[0]*b[3] + a[1]*b[2] - a[2]*b[1] + a[3]*b[0],
	}
}
