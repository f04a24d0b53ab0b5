// Package simclock lets the control nodes run against a simulator's clock.
//
// Sensor updates that arrive before the first clock sample are held back and
// released in arrival order once the offset between the simulated clock and
// the board's monotonic clock is known. After that, Step paces the board so
// that it never runs ahead of simulated time.
package simclock

import (
	"context"
	"sync"
	"time"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/metrics"
	"vehicle-control/internal/types"
)

const (
	DefaultCapacity = 256

	yieldInterval    = time.Millisecond
	initPollInterval = time.Second
)

// TopicID names a sensor topic that is gated on the simulated clock.
type TopicID int

const (
	TopicNavSatFix TopicID = iota
	TopicImu
	TopicBatteryState
)

func (id TopicID) String() string {
	switch id {
	case TopicNavSatFix:
		return "nav_sat_fix"
	case TopicImu:
		return "imu"
	case TopicBatteryState:
		return "battery_state"
	default:
		return "unknown"
	}
}

// Clock is the board's monotonic time source.
type Clock interface {
	// Now returns monotonic time since an arbitrary origin.
	Now() time.Duration
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration)
}

type entry struct {
	id      TopicID
	payload any
}

// Topics are published by the synchronizer itself.
type Topics struct {
	Clock  *bus.Topic[types.SimClock]
	Offset *bus.Topic[types.Time]
}

// Synchronizer gates sensor topics on the simulated clock. Ingest and
// ObserveClock may be called from any goroutine; Step and Run must only be
// driven from one.
type Synchronizer struct {
	clock    Clock
	topics   Topics
	capacity int
	logger   *logger.Logger

	mu          sync.Mutex
	initialized bool
	offset      time.Duration
	sim         time.Duration
	pending     []entry
	routes      map[TopicID]func(any)
	ready       chan struct{}
}

func New(clock Clock, topics Topics, capacity int, l *logger.Logger) *Synchronizer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Synchronizer{
		clock:    clock,
		topics:   topics,
		capacity: capacity,
		logger:   l.WithTag("sim"),
		routes:   make(map[TopicID]func(any)),
		ready:    make(chan struct{}),
	}
}

// Route makes payloads ingested under id land on topic t.
func Route[T any](s *Synchronizer, id TopicID, t *bus.Topic[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[id] = func(payload any) {
		v, ok := payload.(T)
		if !ok {
			s.logger.Warnf("Dropping %s update of type %T", id, payload)
			return
		}
		t.Publish(v)
	}
}

// Ingest publishes payload on the topic routed for id, or buffers it until
// the clock is initialized. A full buffer drops its oldest entry.
func (s *Synchronizer) Ingest(id TopicID, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	route, ok := s.routes[id]
	if !ok {
		s.logger.Warnf("No route for %s, dropping update", id)
		return
	}
	if s.initialized {
		route(payload)
		return
	}

	if len(s.pending) >= s.capacity {
		dropped := s.pending[0]
		s.pending = s.pending[1:]
		s.logger.Warnf("Sim buffer full, dropping oldest %s update", dropped.id)
		metrics.SyncDropped.Inc()
	}
	s.pending = append(s.pending, entry{id: id, payload: payload})
	metrics.SyncBuffered.Set(float64(len(s.pending)))
}

// ObserveClock records a simulated clock sample. The first sample fixes the
// offset, publishes it, and releases everything buffered so far.
func (s *Synchronizer) ObserveClock(sim types.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sim = sim.Duration()
	if s.topics.Clock != nil {
		s.topics.Clock.Publish(types.SimClock{Sim: sim})
	}
	if s.initialized {
		return
	}

	s.offset = s.sim - s.clock.Now()
	s.initialized = true
	if s.topics.Offset != nil {
		s.topics.Offset.Publish(types.TimeFromDuration(s.offset))
	}
	s.logger.Infof("sim clock initialized, offset %v, releasing %d buffered updates", s.offset, len(s.pending))

	for _, e := range s.pending {
		s.routes[e.id](e.payload)
	}
	s.pending = nil
	metrics.SyncBuffered.Set(0)
	close(s.ready)
}

func (s *Synchronizer) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Synchronizer) Offset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Pending returns how many updates are waiting for the clock.
func (s *Synchronizer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// BoardTime is monotonic time shifted onto the simulated clock. Before
// initialization it is plain monotonic time.
func (s *Synchronizer) BoardTime() types.Time {
	s.mu.Lock()
	offset := s.offset
	s.mu.Unlock()
	return types.TimeFromDuration(s.clock.Now() + offset)
}

// Step sleeps until the board catches up with the last simulated sample, in
// whole milliseconds, or yields for a millisecond if it already has. It
// returns the delta sim - board that was observed.
func (s *Synchronizer) Step(ctx context.Context) time.Duration {
	s.mu.Lock()
	delta := s.sim - (s.clock.Now() + s.offset)
	s.mu.Unlock()

	metrics.SyncDelta.Set(delta.Seconds())

	// Truncate rounds toward zero, so a negative delta never yields a
	// positive wait.
	if wait := delta.Truncate(time.Millisecond); wait > 0 {
		s.clock.Sleep(ctx, wait)
	} else {
		s.clock.Sleep(ctx, yieldInterval)
	}
	return delta
}

// Run waits for the first clock sample and then paces the board until ctx is
// done.
func (s *Synchronizer) Run(ctx context.Context) {
	if !s.waitInitialized(ctx) {
		return
	}
	for ctx.Err() == nil {
		s.Step(ctx)
	}
}

func (s *Synchronizer) waitInitialized(ctx context.Context) bool {
	s.logger.Infof("waiting for sim clock")
	ticker := time.NewTicker(initPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ready:
			return true
		case <-ctx.Done():
			return false
		case <-ticker.C:
			s.logger.Debugf("still waiting for sim clock, %d updates buffered", s.Pending())
		}
	}
}
