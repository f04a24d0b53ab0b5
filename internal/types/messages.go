package types

import "math"

// Message structs use fixed-size arrays so that a value copy is a deep copy.
// The bus relies on this to hand out whole values.

const (
	MaxJoyAxes    = 8
	MaxJoyButtons = 16
	MaxActuators  = 16
)

// Joy is a joystick sample.
type Joy struct {
	Axes    [MaxJoyAxes]float64  `cbor:"axes"`
	Buttons [MaxJoyButtons]int32 `cbor:"buttons"`
}

// AxisMap tells the manual node which joystick axis drives which command.
type AxisMap struct {
	Roll   int `yaml:"roll"`
	Pitch  int `yaml:"pitch"`
	Yaw    int `yaml:"yaw"`
	Thrust int `yaml:"thrust"`
}

// DefaultAxisMap is roll, pitch, yaw, thrust on axes 0..3.
func DefaultAxisMap() AxisMap {
	return AxisMap{Roll: 0, Pitch: 1, Yaw: 2, Thrust: 3}
}

// ButtonMap tells the FSM which joystick button is which request.
type ButtonMap struct {
	Arm    int `yaml:"arm"`
	Disarm int `yaml:"disarm"`
	Manual int `yaml:"manual"`
	Auto   int `yaml:"auto"`
	CmdVel int `yaml:"cmd_vel"`
}

func DefaultButtonMap() ButtonMap {
	return ButtonMap{Arm: 0, Disarm: 1, Manual: 2, Auto: 3, CmdVel: 4}
}

// Axis returns axis i, or 0 when i is out of range or the axis is NaN.
func (j Joy) Axis(i int) float64 {
	if i < 0 || i >= len(j.Axes) || math.IsNaN(j.Axes[i]) {
		return 0
	}
	return j.Axes[i]
}

// Button returns button i, or 0 when i is out of range.
func (j Joy) Button(i int) int32 {
	if i < 0 || i >= len(j.Buttons) {
		return 0
	}
	return j.Buttons[i]
}

// Safety is the external safety input.
type Safety struct {
	Status SafetyStatus `cbor:"status"`
}

// BatteryState is only logged by the FSM at arming time.
type BatteryState struct {
	Voltage float64 `cbor:"voltage"`
}

// Quaternion is a unit quaternion, scalar first.
type Quaternion struct {
	W float64 `cbor:"w"`
	X float64 `cbor:"x"`
	Y float64 `cbor:"y"`
	Z float64 `cbor:"z"`
}

// Array returns q as [w, x, y, z].
func (q Quaternion) Array() [4]float64 {
	return [4]float64{q.W, q.X, q.Y, q.Z}
}

type Vector3 struct {
	X float64 `cbor:"x"`
	Y float64 `cbor:"y"`
	Z float64 `cbor:"z"`
}

type Pose struct {
	Position    Vector3    `cbor:"position"`
	Orientation Quaternion `cbor:"orientation"`
}

// Odometry is the estimator output; only the orientation is consumed here.
type Odometry struct {
	Pose Pose `cbor:"pose"`
}

// Actuators carries normalized actuator commands.
type Actuators struct {
	Normalized      [MaxActuators]float64 `cbor:"normalized"`
	NormalizedCount int                   `cbor:"normalized_count"`
}

// Twist is a velocity command with presence flags.
type Twist struct {
	HasLinear  bool    `cbor:"has_linear"`
	Linear     Vector3 `cbor:"linear"`
	HasAngular bool    `cbor:"has_angular"`
	Angular    Vector3 `cbor:"angular"`
}

// SimClock is a simulated clock sample.
type SimClock struct {
	Sim Time `cbor:"sim"`
}

// NavSatFix, Imu are buffered by the synchronizer and otherwise opaque to the
// core.
type NavSatFix struct {
	Latitude  float64 `cbor:"latitude"`
	Longitude float64 `cbor:"longitude"`
	Altitude  float64 `cbor:"altitude"`
}

type Imu struct {
	AngularVelocity    Vector3 `cbor:"angular_velocity"`
	LinearAcceleration Vector3 `cbor:"linear_acceleration"`
}
