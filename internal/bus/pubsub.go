package bus

import "sync"

// Subscriber is a read handle on one topic. Its cached copy only changes on
// Drain.
type Subscriber[T any] struct {
	topic  *Topic[T]
	depth  int
	signal chan struct{}

	mu   sync.Mutex
	msg  T
	seen uint64
}

func (s *Subscriber[T]) Name() string {
	return s.topic.name
}

// DepthHint returns the queue depth requested at subscribe time.
func (s *Subscriber[T]) DepthHint() int {
	return s.depth
}

func (s *Subscriber[T]) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
		// already pending
	}
}

// Ready is signalled after a publish. A signal can outlive the update it
// announced; confirm with UpdateAvailable.
func (s *Subscriber[T]) Ready() <-chan struct{} {
	return s.signal
}

// UpdateAvailable reports whether the topic has been published since the
// last Drain.
func (s *Subscriber[T]) UpdateAvailable() bool {
	s.mu.Lock()
	seen := s.seen
	s.mu.Unlock()
	return s.topic.Sequence() > seen
}

// Drain copies the topic's current value into the cache and clears the
// pending signal. It never blocks on publishers.
func (s *Subscriber[T]) Drain() {
	select {
	case <-s.signal:
	default:
	}
	v, seq := s.topic.Latest()

	s.mu.Lock()
	s.msg = v
	s.seen = seq
	s.mu.Unlock()
}

// Msg returns the cached copy.
func (s *Subscriber[T]) Msg() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msg
}

// Seen returns the topic sequence of the cached copy.
func (s *Subscriber[T]) Seen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

// Publisher is a write handle on one topic. The owning node fills Msg and
// then calls Publish.
type Publisher[T any] struct {
	topic *Topic[T]
	Msg   T
}

func NewPublisher[T any](t *Topic[T], initial T) *Publisher[T] {
	return &Publisher[T]{topic: t, Msg: initial}
}

func (p *Publisher[T]) Name() string {
	return p.topic.name
}

// Publish pushes the staged Msg onto the topic.
func (p *Publisher[T]) Publish() {
	p.topic.Publish(p.Msg)
}
