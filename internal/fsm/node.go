package fsm

import (
	"context"
	"time"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/control"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/types"
)

// Topics are the topics the FSM node reads and writes.
type Topics struct {
	Joy     *bus.Topic[types.Joy]
	Battery *bus.Topic[types.BatteryState]
	Safety  *bus.Topic[types.Safety]
	Fsm     *bus.Topic[types.Fsm]
}

// Node runs Arming on every joystick update and at least once per timeout.
type Node struct {
	arming  *Arming
	joy     *bus.Subscriber[types.Joy]
	battery *bus.Subscriber[types.BatteryState]
	safety  *bus.Subscriber[types.Safety]
	out     *bus.Publisher[types.Fsm]
	loop    *control.Loop
}

func NewNode(ctx context.Context, t Topics, cfg Config, timeout time.Duration, l *logger.Logger) (*Node, error) {
	l = l.WithTag("fsm")
	arming, err := NewArming(ctx, cfg, l)
	if err != nil {
		return nil, err
	}

	node := bus.NewNode("fsm")
	n := &Node{
		arming:  arming,
		joy:     bus.Subscribe(node, t.Joy, 10),
		battery: bus.Subscribe(node, t.Battery, 1),
		safety:  bus.Subscribe(node, t.Safety, 1),
		out:     bus.Advertise(node, t.Fsm, arming.State()),
	}
	n.loop = &control.Loop{
		Node:     node,
		Triggers: []bus.Waitable{n.joy},
		Timeout:  timeout,
		Step:     n.step,
		Log:      l,
	}
	return n, nil
}

func (n *Node) Node() *bus.Node {
	return n.loop.Node
}

func (n *Node) Arming() *Arming {
	return n.arming
}

// Run cycles until ctx is cancelled, then stops the arming machine.
func (n *Node) Run(ctx context.Context) {
	n.loop.Run(ctx)
	n.arming.Stop()
}

func (n *Node) Cycle(ctx context.Context) bool {
	return n.loop.Cycle(ctx)
}

func (n *Node) step(bool) {
	n.out.Msg = n.arming.Update(n.joy.Msg(), n.battery.Msg(), n.safety.Msg())
}
