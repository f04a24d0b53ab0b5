package control

import (
	"context"
	"time"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/metrics"
	"vehicle-control/internal/types"
)

// AttitudeErrorFunc maps the current orientation q = [w, x, y, z] and a target
// roll/pitch/yaw to a body-rate command.
type AttitudeErrorFunc func(q [4]float64, roll, pitch, yaw float64) [3]float64

// AttitudeTopics are the topics the attitude node reads and writes.
type AttitudeTopics struct {
	Status   *bus.Topic[types.Fsm]
	Odometry *bus.Topic[types.Odometry]
	Manual   *bus.Topic[types.Actuators]
	CmdVel   *bus.Topic[types.Twist]
	RatesSp  *bus.Topic[types.Vector3]
}

// AttitudeNode turns manual attitude targets into body-rate setpoints. It is
// triggered by odometry and fails safe whenever it may not actuate.
type AttitudeNode struct {
	status   *bus.Subscriber[types.Fsm]
	odometry *bus.Subscriber[types.Odometry]
	manual   *bus.Subscriber[types.Actuators]
	cmdVel   *bus.Publisher[types.Twist]
	ratesSp  *bus.Publisher[types.Vector3]

	attitudeError AttitudeErrorFunc
	loop          *Loop
	log           *logger.Logger
}

// NewAttitudeNode wires the node. A nil attitudeError selects
// QuaternionError(DefaultAttitudeGain).
func NewAttitudeNode(t AttitudeTopics, attitudeError AttitudeErrorFunc, timeout time.Duration, l *logger.Logger) *AttitudeNode {
	if attitudeError == nil {
		attitudeError = QuaternionError(DefaultAttitudeGain)
	}

	node := bus.NewNode("attitude")
	a := &AttitudeNode{
		status:        bus.Subscribe(node, t.Status, 10),
		odometry:      bus.Subscribe(node, t.Odometry, 100),
		manual:        bus.Subscribe(node, t.Manual, 10),
		cmdVel:        bus.Advertise(node, t.CmdVel, types.Twist{HasAngular: true}),
		ratesSp:       bus.Advertise(node, t.RatesSp, types.Vector3{}),
		attitudeError: attitudeError,
		log:           l.WithTag("attitude"),
	}
	a.loop = &Loop{
		Node:     node,
		Triggers: []bus.Waitable{a.odometry},
		Timeout:  timeout,
		Step:     a.step,
		Log:      a.log,
	}
	return a
}

func (a *AttitudeNode) Node() *bus.Node {
	return a.loop.Node
}

func (a *AttitudeNode) Run(ctx context.Context) {
	a.loop.Run(ctx)
}

func (a *AttitudeNode) Cycle(ctx context.Context) bool {
	return a.loop.Cycle(ctx)
}

func (a *AttitudeNode) step(timedOut bool) {
	fsm := a.status.Msg()
	if ok, reason := Authorized(timedOut, fsm); !ok {
		a.stop(reason)
		return
	}

	switch fsm.Mode {
	case types.ModeManual, types.ModeCmdVel:
		a.log.Debugf("%s mode", fsm.Mode)
		a.update()
	default:
		a.stop("mode " + fsm.Mode.String())
	}
}

func (a *AttitudeNode) update() {
	manual := a.manual.Msg()
	q := a.odometry.Msg().Pose.Orientation.Array()
	omega := a.attitudeError(q, manual.Normalized[0], manual.Normalized[1], manual.Normalized[2])
	a.setRates(types.Vector3{X: omega[0], Y: omega[1], Z: omega[2]})
}

func (a *AttitudeNode) stop(reason string) {
	a.log.Debugf("%s, stopped", reason)
	metrics.FailSafes.WithLabelValues(a.loop.Node.Name(), reason).Inc()
	a.setRates(types.Vector3{})
}

func (a *AttitudeNode) setRates(v types.Vector3) {
	a.cmdVel.Msg.HasAngular = true
	a.cmdVel.Msg.Angular = v
	a.ratesSp.Msg = v
}
