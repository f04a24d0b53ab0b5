// Package control holds the periodic control nodes and the loop skeleton they
// share: wait on a trigger, drain, decide, compute, publish.
package control

import (
	"context"
	"strings"
	"time"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/metrics"
	"vehicle-control/internal/types"
)

// DefaultTimeout bounds every poll, which also makes it the minimum publish
// period of a node.
const DefaultTimeout = 1000 * time.Millisecond

// Loop is the cycle every control node runs. Step receives whether the poll
// timed out and fills the node's publishers; the loop publishes them.
type Loop struct {
	Node     *bus.Node
	Triggers []bus.Waitable
	Timeout  time.Duration
	Step     func(timedOut bool)
	Log      *logger.Logger

	waitingFor string
}

func (l *Loop) timeout() time.Duration {
	if l.Timeout <= 0 {
		return DefaultTimeout
	}
	return l.Timeout
}

// Cycle runs one iteration. It returns false once ctx is done, which is only
// observed at the poll boundary so a cycle is never cut short.
func (l *Loop) Cycle(ctx context.Context) bool {
	res := bus.Poll(ctx, l.timeout(), l.Triggers...)
	if res == bus.PollCancelled {
		return false
	}

	timedOut := res == bus.PollTimeout
	if timedOut {
		l.Log.Debugf("not receiving %s", l.triggerNames())
		metrics.LoopTimeouts.WithLabelValues(l.Node.Name()).Inc()
	}

	l.Node.LockAll()
	l.Node.DrainAll()
	l.Step(timedOut)
	l.Node.PublishAll()
	l.Node.UnlockAll()

	metrics.LoopCycles.WithLabelValues(l.Node.Name()).Inc()
	return true
}

// Run cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.Log.Infof("init")
	for l.Cycle(ctx) {
	}
	l.Log.Infof("stopped")
}

func (l *Loop) triggerNames() string {
	if l.waitingFor == "" {
		names := make([]string, 0, len(l.Triggers))
		for _, t := range l.Triggers {
			names = append(names, t.Name())
		}
		l.waitingFor = strings.Join(names, ", ")
	}
	return l.waitingFor
}

// Authorized reports whether a node may compute actuation this cycle. When it
// may not, reason says why.
func Authorized(timedOut bool, fsm types.Fsm) (bool, string) {
	if timedOut {
		return false, "no data"
	}
	if !fsm.IsArmed() {
		return false, "not armed"
	}
	return true, ""
}
