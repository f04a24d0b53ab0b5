package simclock

import (
	"context"
	"sync"
	"testing"
	"time"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/types"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now += d
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

type fixture struct {
	clock  *fakeClock
	sync   *Synchronizer
	imu    *bus.Topic[types.Imu]
	navsat *bus.Topic[types.NavSatFix]
	offset *bus.Topic[types.Time]
	simClk *bus.Topic[types.SimClock]
}

func newFixture(capacity int) *fixture {
	f := &fixture{
		clock:  &fakeClock{now: 5 * time.Second},
		imu:    bus.NewTopic[types.Imu]("imu"),
		navsat: bus.NewTopic[types.NavSatFix]("nav_sat_fix"),
		offset: bus.NewTopic[types.Time]("clock_offset"),
		simClk: bus.NewTopic[types.SimClock]("sim_clock"),
	}
	f.sync = New(f.clock, Topics{Clock: f.simClk, Offset: f.offset}, capacity, logger.NewLogger(nil, logger.LogLevelDebug))
	Route(f.sync, TopicImu, f.imu)
	Route(f.sync, TopicNavSatFix, f.navsat)
	return f
}

func imu(x float64) types.Imu {
	return types.Imu{AngularVelocity: types.Vector3{X: x}}
}

// ===== Buffering Tests =====

func TestNothingDeliveredBeforeClock(t *testing.T) {
	f := newFixture(0)

	f.sync.Ingest(TopicImu, imu(1))
	f.sync.Ingest(TopicNavSatFix, types.NavSatFix{Latitude: 1})
	f.sync.Ingest(TopicImu, imu(2))

	if f.imu.Sequence() != 0 || f.navsat.Sequence() != 0 {
		t.Errorf("Expected no deliveries before clock, got imu=%d navsat=%d", f.imu.Sequence(), f.navsat.Sequence())
	}
	if f.sync.Pending() != 3 {
		t.Errorf("Expected 3 pending, got %d", f.sync.Pending())
	}
	if f.sync.Initialized() {
		t.Error("Expected not initialized")
	}
}

func TestFirstClockReleasesAllInOrder(t *testing.T) {
	f := newFixture(0)

	var values []float64
	next := f.sync.routes[TopicImu]
	f.sync.routes[TopicImu] = func(p any) {
		values = append(values, p.(types.Imu).AngularVelocity.X)
		next(p)
	}

	for i := 1; i <= 3; i++ {
		f.sync.Ingest(TopicImu, imu(float64(i)))
	}
	if len(values) != 0 {
		t.Fatalf("Expected no deliveries before clock, got %v", values)
	}
	f.sync.ObserveClock(types.Time{Sec: 100})

	want := []float64{1, 2, 3}
	if len(values) != len(want) {
		t.Fatalf("Expected %d deliveries, got %v", len(want), values)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("Delivery %d: expected %v, got %v", i, want[i], values[i])
		}
	}
	if v, seq := f.imu.Latest(); seq != 3 || v.AngularVelocity.X != 3 {
		t.Errorf("Expected topic to hold the last update, got seq=%d value=%v", seq, v.AngularVelocity.X)
	}
	if f.sync.Pending() != 0 {
		t.Errorf("Expected buffer empty after flush, got %d", f.sync.Pending())
	}
}

func TestFlushPreservesArrivalOrderAcrossTopics(t *testing.T) {
	f := newFixture(0)

	var delivered []TopicID
	f.sync.routes[TopicImu] = wrapRecord(f.sync.routes[TopicImu], TopicImu, &delivered)
	f.sync.routes[TopicNavSatFix] = wrapRecord(f.sync.routes[TopicNavSatFix], TopicNavSatFix, &delivered)

	f.sync.Ingest(TopicNavSatFix, types.NavSatFix{})
	f.sync.Ingest(TopicImu, imu(1))
	f.sync.Ingest(TopicNavSatFix, types.NavSatFix{})

	f.sync.ObserveClock(types.Time{Sec: 1})

	want := []TopicID{TopicNavSatFix, TopicImu, TopicNavSatFix}
	if len(delivered) != len(want) {
		t.Fatalf("Expected %d deliveries, got %d", len(want), len(delivered))
	}
	for i := range want {
		if delivered[i] != want[i] {
			t.Errorf("Delivery %d: expected %s, got %s", i, want[i], delivered[i])
		}
	}
}

func wrapRecord(next func(any), id TopicID, out *[]TopicID) func(any) {
	return func(p any) {
		*out = append(*out, id)
		next(p)
	}
}

func TestFlushHappensOnce(t *testing.T) {
	f := newFixture(0)
	f.sync.Ingest(TopicImu, imu(1))

	f.sync.ObserveClock(types.Time{Sec: 10})
	f.sync.ObserveClock(types.Time{Sec: 11})

	if seq := f.imu.Sequence(); seq != 1 {
		t.Errorf("Expected exactly one delivery, got %d", seq)
	}
	if seq := f.offset.Sequence(); seq != 1 {
		t.Errorf("Expected offset published once, got %d", seq)
	}
	if seq := f.simClk.Sequence(); seq != 2 {
		t.Errorf("Expected every clock sample published, got %d", seq)
	}
}

func TestIngestAfterInitPublishesImmediately(t *testing.T) {
	f := newFixture(0)
	f.sync.ObserveClock(types.Time{Sec: 10})

	f.sync.Ingest(TopicImu, imu(7))
	if v, seq := f.imu.Latest(); seq != 1 || v.AngularVelocity.X != 7 {
		t.Errorf("Expected immediate delivery, got seq=%d value=%v", seq, v.AngularVelocity.X)
	}
}

func TestFullBufferDropsOldest(t *testing.T) {
	f := newFixture(2)

	f.sync.Ingest(TopicImu, imu(1))
	f.sync.Ingest(TopicImu, imu(2))
	f.sync.Ingest(TopicImu, imu(3))

	if f.sync.Pending() != 2 {
		t.Fatalf("Expected 2 pending, got %d", f.sync.Pending())
	}
	if f.sync.pending[0].payload.(types.Imu).AngularVelocity.X != 2 {
		t.Errorf("Expected oldest entry dropped, head is %+v", f.sync.pending[0].payload)
	}
}

func TestUnroutedTopicIsDropped(t *testing.T) {
	f := newFixture(0)
	f.sync.Ingest(TopicBatteryState, types.BatteryState{Voltage: 12})

	if f.sync.Pending() != 0 {
		t.Errorf("Expected unrouted update dropped, got %d pending", f.sync.Pending())
	}
}

func TestWrongPayloadTypeIsDropped(t *testing.T) {
	f := newFixture(0)
	f.sync.ObserveClock(types.Time{Sec: 1})

	f.sync.Ingest(TopicImu, types.NavSatFix{})
	if f.imu.Sequence() != 0 {
		t.Error("Expected mistyped payload to be dropped")
	}
}

// ===== Offset Tests =====

func TestOffsetFromFirstSample(t *testing.T) {
	f := newFixture(0)

	f.sync.ObserveClock(types.Time{Sec: 100, Nanosec: 500})

	want := 100*time.Second + 500 - 5*time.Second
	if got := f.sync.Offset(); got != want {
		t.Errorf("Expected offset %v, got %v", want, got)
	}
	v, _ := f.offset.Latest()
	if v.Duration() != want {
		t.Errorf("Expected published offset %v, got %v", want, v.Duration())
	}
	if got := f.sync.BoardTime(); got != (types.Time{Sec: 100, Nanosec: 500}) {
		t.Errorf("Expected board time to match sim time, got %+v", got)
	}
}

// ===== Pacing Tests =====

func TestStepSleepsWholeMilliseconds(t *testing.T) {
	f := newFixture(0)
	f.sync.ObserveClock(types.Time{Sec: 100})
	f.sync.ObserveClock(types.Time{Sec: 100, Nanosec: 2_500_000})

	delta := f.sync.Step(context.Background())
	if delta != 2500*time.Microsecond {
		t.Errorf("Expected delta 2.5ms, got %v", delta)
	}
	if got := f.clock.sleeps[0]; got != 2*time.Millisecond {
		t.Errorf("Expected 2ms sleep, got %v", got)
	}
}

func TestStepYieldsWhenAhead(t *testing.T) {
	f := newFixture(0)
	f.sync.ObserveClock(types.Time{Sec: 100})
	f.clock.advance(3 * time.Second)

	delta := f.sync.Step(context.Background())
	if delta >= 0 {
		t.Errorf("Expected negative delta, got %v", delta)
	}
	if got := f.clock.sleeps[0]; got != time.Millisecond {
		t.Errorf("Expected 1ms yield, got %v", got)
	}
}

func TestDeltaNonIncreasingAndSleepsPositive(t *testing.T) {
	f := newFixture(0)
	f.sync.ObserveClock(types.Time{Sec: 100})
	f.sync.ObserveClock(types.Time{Sec: 100, Nanosec: 20_700_000})

	prev := time.Duration(1<<63 - 1)
	for i := 0; i < 30; i++ {
		delta := f.sync.Step(context.Background())
		if delta > prev {
			t.Fatalf("Step %d: delta increased from %v to %v", i, prev, delta)
		}
		prev = delta
	}
	for i, d := range f.clock.sleeps {
		if d <= 0 {
			t.Errorf("Sleep %d: got non-positive duration %v", i, d)
		}
	}
	if prev >= 0 {
		t.Errorf("Expected board to catch up with sim time, last delta %v", prev)
	}
}

func TestRunStopsWhenCancelledBeforeInit(t *testing.T) {
	f := newFixture(0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.sync.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunPacesAfterInit(t *testing.T) {
	f := newFixture(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.sync.Run(ctx)
		close(done)
	}()
	f.sync.ObserveClock(types.Time{Sec: 1})

	deadline := time.After(2 * time.Second)
	for {
		f.clock.mu.Lock()
		n := len(f.clock.sleeps)
		f.clock.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Run never stepped after init")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}
