package control

import (
	"context"
	"math"
	"time"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/types"
)

// ManualNormalizedCount is the number of channels the manual node fills:
// roll, pitch, yaw, thrust.
const ManualNormalizedCount = 4

// ManualNode maps joystick axes to normalized actuator commands.
type ManualNode struct {
	axes types.AxisMap
	joy  *bus.Subscriber[types.Joy]
	out  *bus.Publisher[types.Actuators]
	loop *Loop
}

func NewManualNode(joy *bus.Topic[types.Joy], out *bus.Topic[types.Actuators], axes types.AxisMap, timeout time.Duration, l *logger.Logger) *ManualNode {
	node := bus.NewNode("manual")
	m := &ManualNode{
		axes: axes,
		joy:  bus.Subscribe(node, joy, 10),
		out:  bus.Advertise(node, out, types.Actuators{}),
	}
	m.loop = &Loop{
		Node:     node,
		Triggers: []bus.Waitable{m.joy},
		Timeout:  timeout,
		Step:     m.step,
		Log:      l.WithTag("manual"),
	}
	return m
}

func (m *ManualNode) Node() *bus.Node {
	return m.loop.Node
}

func (m *ManualNode) Run(ctx context.Context) {
	m.loop.Run(ctx)
}

func (m *ManualNode) Cycle(ctx context.Context) bool {
	return m.loop.Cycle(ctx)
}

// Manual input is published on every cycle, stale or not; gating on arming
// happens downstream.
func (m *ManualNode) step(bool) {
	m.out.Msg = JoyToActuators(m.joy.Msg(), m.axes)
}

// JoyToActuators scales a joystick sample. Thrust is remapped from [-1, 1]
// around a 0.5 hover point; every channel is then clamped to [-1, 1].
func JoyToActuators(joy types.Joy, axes types.AxisMap) types.Actuators {
	var a types.Actuators
	a.NormalizedCount = ManualNormalizedCount
	a.Normalized[0] = Clamp(joy.Axis(axes.Roll))
	a.Normalized[1] = Clamp(joy.Axis(axes.Pitch))
	a.Normalized[2] = Clamp(joy.Axis(axes.Yaw))
	a.Normalized[3] = Clamp(joy.Axis(axes.Thrust)*0.1 + 0.5)
	return a
}

// Clamp saturates v to [-1, 1]. NaN maps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
