// Package bus is the in-process topic bus every control node talks through.
//
// A topic holds exactly one current value. Publishing overwrites it; there is
// no queue, so several publishes between two drains collapse to the last one.
// Subscribers pull: their cached copy changes only when the owning node calls
// Drain, which lets a control cycle decide when outside state may change.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"vehicle-control/internal/metrics"
)

// Topic is a named latest-value slot of type T. T should be a plain value
// (no slices or maps) so that a copy is a complete snapshot.
type Topic[T any] struct {
	name string

	mu    sync.RWMutex
	value T
	seq   atomic.Uint64 // written under mu

	subsMu sync.Mutex
	subs   map[*Subscriber[T]]struct{}

	published prometheus.Counter
}

func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{
		name:      name,
		subs:      make(map[*Subscriber[T]]struct{}),
		published: metrics.TopicPublishes.WithLabelValues(name),
	}
}

func (t *Topic[T]) Name() string {
	return t.name
}

// Publish replaces the current value and wakes every bound subscriber.
// Safe to call from any goroutine.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	t.value = v
	t.seq.Add(1)
	t.mu.Unlock()
	t.published.Inc()

	t.subsMu.Lock()
	for s := range t.subs {
		s.notify()
	}
	t.subsMu.Unlock()
}

// Latest returns the current value and the sequence number it was published
// with. Sequence 0 means nothing has been published yet.
func (t *Topic[T]) Latest() (T, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value, t.seq.Load()
}

// Sequence returns the number of publishes so far.
func (t *Topic[T]) Sequence() uint64 {
	return t.seq.Load()
}

// Subscribe binds a new subscriber. The depth hint is kept for diagnostics
// only; a topic never queues.
func (t *Topic[T]) Subscribe(depthHint int) *Subscriber[T] {
	s := &Subscriber[T]{
		topic:  t,
		depth:  depthHint,
		signal: make(chan struct{}, 1),
	}
	t.subsMu.Lock()
	t.subs[s] = struct{}{}
	t.subsMu.Unlock()
	return s
}

// Unsubscribe detaches s. s keeps its cached value but is never woken again.
func (t *Topic[T]) Unsubscribe(s *Subscriber[T]) {
	t.subsMu.Lock()
	delete(t.subs, s)
	t.subsMu.Unlock()
}

// Subscribers returns how many subscribers are bound.
func (t *Topic[T]) Subscribers() int {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	return len(t.subs)
}
