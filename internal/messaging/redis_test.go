package messaging

import (
	"bytes"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"vehicle-control/internal/codec"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/types"
)

// newTestClient never connects; the handlers under test do not touch Redis.
func newTestClient(cb Callbacks) *RedisClient {
	return NewRedisClient("127.0.0.1", 0, logger.NewLogger(nil, logger.LogLevelDebug), cb)
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	data, err := codec.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return string(data)
}

// ===== List Handler Tests =====

func TestHandleJoy(t *testing.T) {
	var got types.Joy
	calls := 0
	r := newTestClient(Callbacks{Joy: func(j types.Joy) {
		got = j
		calls++
	}})

	var j types.Joy
	j.Axes[0] = 0.5
	j.Buttons[2] = 1
	if err := r.handleJoy(mustMarshal(t, j)); err != nil {
		t.Fatalf("handleJoy failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("Expected 1 callback, got %d", calls)
	}
	if got != j {
		t.Errorf("Expected %+v, got %+v", j, got)
	}
}

func TestHandleSafety(t *testing.T) {
	var got types.Safety
	r := newTestClient(Callbacks{Safety: func(s types.Safety) { got = s }})

	if err := r.handleSafety(mustMarshal(t, types.Safety{Status: types.SafetySafeToArm})); err != nil {
		t.Fatalf("handleSafety failed: %v", err)
	}
	if got.Status != types.SafetySafeToArm {
		t.Errorf("Expected safe-to-arm, got %s", got.Status)
	}
}

func TestHandleMalformedIsDropped(t *testing.T) {
	calls := 0
	r := newTestClient(Callbacks{Battery: func(types.BatteryState) { calls++ }})

	if err := r.handleBattery("\xff\xfe"); err == nil {
		t.Error("Expected decode error")
	}
	if calls != 0 {
		t.Errorf("Expected no callback for malformed message, got %d", calls)
	}
}

func TestHandleWithoutCallback(t *testing.T) {
	r := newTestClient(Callbacks{})

	if err := r.handleOdometry(mustMarshal(t, types.Odometry{})); err != nil {
		t.Errorf("Expected message to be discarded quietly, got %v", err)
	}
}

// ===== Sim Frame Tests =====

func simFrame(t *testing.T, topic string, v any) string {
	t.Helper()
	inner, err := codec.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return mustMarshal(t, SimFrame{Topic: topic, Payload: inner})
}

func TestHandleSimFrameRoutesByTopic(t *testing.T) {
	var clock types.SimClock
	var imu types.Imu
	var nav types.NavSatFix
	var bat types.BatteryState
	r := newTestClient(Callbacks{
		SimClock:   func(c types.SimClock) { clock = c },
		Imu:        func(i types.Imu) { imu = i },
		NavSatFix:  func(n types.NavSatFix) { nav = n },
		SimBattery: func(b types.BatteryState) { bat = b },
	})

	frames := []string{
		simFrame(t, SimTopicClock, types.SimClock{Sim: types.Time{Sec: 7}}),
		simFrame(t, SimTopicImu, types.Imu{AngularVelocity: types.Vector3{Z: 1}}),
		simFrame(t, SimTopicNavSatFix, types.NavSatFix{Latitude: 47.1}),
		simFrame(t, SimTopicBattery, types.BatteryState{Voltage: 11.1}),
	}
	for _, f := range frames {
		if err := r.handleSimFrame(f); err != nil {
			t.Fatalf("handleSimFrame failed: %v", err)
		}
	}

	if clock.Sim.Sec != 7 {
		t.Errorf("Expected sim clock 7s, got %+v", clock)
	}
	if imu.AngularVelocity.Z != 1 {
		t.Errorf("Expected imu z rate 1, got %+v", imu)
	}
	if nav.Latitude != 47.1 {
		t.Errorf("Expected latitude 47.1, got %v", nav.Latitude)
	}
	if bat.Voltage != 11.1 {
		t.Errorf("Expected voltage 11.1, got %v", bat.Voltage)
	}
}

func TestHandleSimFrameUnknownTopic(t *testing.T) {
	r := newTestClient(Callbacks{SimClock: func(types.SimClock) {}})

	if err := r.handleSimFrame(simFrame(t, "lidar", 1)); err == nil {
		t.Error("Expected error for unknown sim topic")
	}
}

func TestWantsSim(t *testing.T) {
	if (Callbacks{Joy: func(types.Joy) {}}).wantsSim() {
		t.Error("Expected no sim listener without sim callbacks")
	}
	if !(Callbacks{Imu: func(types.Imu) {}}).wantsSim() {
		t.Error("Expected sim listener with an imu callback")
	}
}

// ===== Listener Retry Tests =====

func TestWaitRetry(t *testing.T) {
	r := newTestClient(Callbacks{})
	r.retryDelay = 20 * time.Millisecond

	start := time.Now()
	if !r.waitRetry() {
		t.Fatal("Expected waitRetry to complete while the client is open")
	}
	if elapsed := time.Since(start); elapsed < r.retryDelay {
		t.Errorf("Expected to wait at least %v, got %v", r.retryDelay, elapsed)
	}

	r.retryDelay = time.Hour
	r.cancel()
	if r.waitRetry() {
		t.Error("Expected waitRetry to return false once the client is closed")
	}
}

// unreachablePort returns a local port with nothing listening on it.
func unreachablePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestListenerBacksOffOnReadError(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewLogger(log.New(&buf, "", 0), logger.LogLevelDebug)
	r := NewRedisClient("127.0.0.1", unreachablePort(t), l, Callbacks{})
	r.retryDelay = 100 * time.Millisecond
	defer r.client.Close()

	r.wg.Add(1)
	done := make(chan struct{})
	go func() {
		r.listCommandListener(KeyJoy, r.handleJoy)
		close(done)
	}()

	time.Sleep(350 * time.Millisecond)
	r.cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listener did not exit after cancel")
	}

	errs := strings.Count(buf.String(), "Error reading from")
	if errs < 1 || errs > 5 {
		t.Errorf("Expected between 1 and 5 read errors with backoff, got %d", errs)
	}
}
