package core

import (
	"context"
	"time"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/control"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/types"
)

// telemetry forwards fsm, cmd_vel and rates_sp to Redis whenever one of them
// is published.
type telemetry struct {
	client MessagingClient
	logger *logger.Logger

	fsm     *bus.Subscriber[types.Fsm]
	cmdVel  *bus.Subscriber[types.Twist]
	ratesSp *bus.Subscriber[types.Vector3]
	sent    [3]uint64
	loop    *control.Loop
}

func newTelemetry(t *Topics, client MessagingClient, timeout time.Duration, l *logger.Logger) *telemetry {
	l = l.WithTag("telemetry")
	node := bus.NewNode("telemetry")
	tm := &telemetry{
		client:  client,
		logger:  l,
		fsm:     bus.Subscribe(node, t.Fsm, 1),
		cmdVel:  bus.Subscribe(node, t.CmdVel, 1),
		ratesSp: bus.Subscribe(node, t.RatesSp, 1),
	}
	tm.loop = &control.Loop{
		Node:     node,
		Triggers: []bus.Waitable{tm.fsm, tm.cmdVel, tm.ratesSp},
		Timeout:  timeout,
		Step:     func(bool) { tm.forward() },
		Log:      l,
	}
	return tm
}

func (t *telemetry) Run(ctx context.Context) {
	t.loop.Run(ctx)
}

// Flush forwards whatever was published since the last cycle. Call it once
// Run has returned.
func (t *telemetry) Flush() {
	if t.loop.Node.Listen() > 0 {
		t.forward()
	}
}

func (t *telemetry) forward() {
	send(t, t.fsm, &t.sent[0], t.client.PublishFsm)
	send(t, t.cmdVel, &t.sent[1], t.client.PublishCmdVel)
	send(t, t.ratesSp, &t.sent[2], t.client.PublishRatesSp)
}

func send[T any](t *telemetry, s *bus.Subscriber[T], sent *uint64, publish func(T) error) {
	if s.Seen() == *sent {
		return
	}
	*sent = s.Seen()
	if err := publish(s.Msg()); err != nil {
		t.logger.Warnf("Failed to publish %s: %v", s.Name(), err)
	}
}
