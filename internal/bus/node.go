package bus

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// Waitable is anything Poll can wait on.
type Waitable interface {
	Name() string
	UpdateAvailable() bool
	Ready() <-chan struct{}
}

type drainable interface {
	Waitable
	Drain()
}

type publishable interface {
	Name() string
	Publish()
}

// Node groups the subscriptions and publications of one control task. Its
// lock brackets a drain-compute-publish batch for that node only; it is not
// a bus-wide lock and never serializes one node against another.
type Node struct {
	name string

	mu   sync.Mutex
	subs []drainable
	pubs []publishable
}

func NewNode(name string) *Node {
	return &Node{name: name}
}

func (n *Node) Name() string {
	return n.name
}

// Subscribe binds a new subscriber on t and adds it to n.
func Subscribe[T any](n *Node, t *Topic[T], depthHint int) *Subscriber[T] {
	s := t.Subscribe(depthHint)
	n.subs = append(n.subs, s)
	return s
}

// Advertise creates a publisher on t staged with initial and adds it to n.
func Advertise[T any](n *Node, t *Topic[T], initial T) *Publisher[T] {
	p := NewPublisher(t, initial)
	n.pubs = append(n.pubs, p)
	return p
}

// LockAll takes the node lock. Pair with UnlockAll.
func (n *Node) LockAll() {
	n.mu.Lock()
}

func (n *Node) UnlockAll() {
	n.mu.Unlock()
}

// DrainAll drains every subscription with a pending update and returns how
// many were drained.
func (n *Node) DrainAll() int {
	drained := 0
	for _, s := range n.subs {
		if s.UpdateAvailable() {
			s.Drain()
			drained++
		}
	}
	return drained
}

// PublishAll publishes the staged value of every publisher of the node.
func (n *Node) PublishAll() {
	for _, p := range n.pubs {
		p.Publish()
	}
}

// Listen refreshes the node's subscriptions under the node lock. It is meant
// for callers outside the node's own loop that need its view to be current.
func (n *Node) Listen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.DrainAll()
}

// PollResult says why Poll returned.
type PollResult int

const (
	PollData PollResult = iota
	PollTimeout
	PollCancelled
)

func (r PollResult) String() string {
	switch r {
	case PollData:
		return "data"
	case PollTimeout:
		return "timeout"
	case PollCancelled:
		return "cancelled"
	default:
		return "invalid"
	}
}

// Poll blocks until one of subs has an update, timeout elapses, or ctx is
// done. It is the only place a control loop blocks.
func Poll(ctx context.Context, timeout time.Duration, subs ...Waitable) PollResult {
	if ctx.Err() != nil {
		return PollCancelled
	}
	if anyAvailable(subs) {
		return PollData
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	cases := make([]reflect.SelectCase, 0, len(subs)+2)
	cases = append(cases,
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)},
	)
	for _, s := range subs {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.Ready())})
	}

	for {
		chosen, _, _ := reflect.Select(cases)
		switch chosen {
		case 0:
			return PollCancelled
		case 1:
			return PollTimeout
		}
		// A signal may be left over from an update that was already drained.
		if anyAvailable(subs) {
			return PollData
		}
	}
}

func anyAvailable(subs []Waitable) bool {
	for _, s := range subs {
		if s.UpdateAvailable() {
			return true
		}
	}
	return false
}
