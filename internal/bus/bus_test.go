package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sample struct {
	A, B, C int
}

// ===== Topic Tests =====

func TestPublishOverwritesLatest(t *testing.T) {
	topic := NewTopic[int]("test_overwrite")
	sub := topic.Subscribe(10)

	topic.Publish(1)
	topic.Publish(2)
	topic.Publish(3)

	if !sub.UpdateAvailable() {
		t.Fatal("Expected update available after publish")
	}
	sub.Drain()
	if got := sub.Msg(); got != 3 {
		t.Errorf("Expected 3, got %d", got)
	}
	if sub.UpdateAvailable() {
		t.Error("Expected no update after drain")
	}
}

func TestSubscriberStartsAtZeroValue(t *testing.T) {
	topic := NewTopic[sample]("test_zero")
	sub := topic.Subscribe(1)

	if sub.UpdateAvailable() {
		t.Error("Expected no update before any publish")
	}
	if got := sub.Msg(); got != (sample{}) {
		t.Errorf("Expected zero value, got %+v", got)
	}
}

func TestCacheChangesOnlyOnDrain(t *testing.T) {
	topic := NewTopic[int]("test_pull")
	sub := topic.Subscribe(1)

	topic.Publish(7)
	sub.Drain()
	topic.Publish(8)

	if got := sub.Msg(); got != 7 {
		t.Errorf("Expected cached 7 until next drain, got %d", got)
	}
	sub.Drain()
	if got := sub.Msg(); got != 8 {
		t.Errorf("Expected 8 after drain, got %d", got)
	}
}

func TestLateSubscriberSeesCurrentValue(t *testing.T) {
	topic := NewTopic[int]("test_late")
	topic.Publish(42)

	sub := topic.Subscribe(1)
	if !sub.UpdateAvailable() {
		t.Fatal("Expected late subscriber to see published value as pending")
	}
	sub.Drain()
	if got := sub.Msg(); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}

func TestDrainWithoutPublishKeepsZero(t *testing.T) {
	topic := NewTopic[int]("test_empty_drain")
	sub := topic.Subscribe(1)

	sub.Drain()
	if got := sub.Msg(); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
	if sub.Seen() != 0 {
		t.Errorf("Expected seen 0, got %d", sub.Seen())
	}
}

func TestUnsubscribeStopsSignals(t *testing.T) {
	topic := NewTopic[int]("test_unsubscribe")
	sub := topic.Subscribe(1)
	topic.Unsubscribe(sub)

	topic.Publish(1)
	select {
	case <-sub.Ready():
		t.Error("Expected no signal after unsubscribe")
	default:
	}
	if topic.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", topic.Subscribers())
	}
}

func TestConcurrentPublishNeverTears(t *testing.T) {
	topic := NewTopic[sample]("test_tear")
	sub := topic.Subscribe(1)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				v := base*10000 + i
				topic.Publish(sample{A: v, B: v, C: v})
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		sub.Drain()
		m := sub.Msg()
		if m.A != m.B || m.B != m.C {
			t.Fatalf("Observed partially written value %+v", m)
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// ===== Node Tests =====

func TestNodeDrainAllAndPublishAll(t *testing.T) {
	in1 := NewTopic[int]("test_node_in1")
	in2 := NewTopic[int]("test_node_in2")
	out := NewTopic[int]("test_node_out")

	n := NewNode("test")
	s1 := Subscribe(n, in1, 1)
	s2 := Subscribe(n, in2, 1)
	p := Advertise(n, out, 0)

	in1.Publish(5)
	if drained := n.DrainAll(); drained != 1 {
		t.Errorf("Expected 1 drained, got %d", drained)
	}
	if s1.Msg() != 5 || s2.Msg() != 0 {
		t.Errorf("Unexpected caches: s1=%d s2=%d", s1.Msg(), s2.Msg())
	}

	p.Msg = s1.Msg() * 2
	n.PublishAll()
	if v, seq := out.Latest(); v != 10 || seq != 1 {
		t.Errorf("Expected (10, 1), got (%d, %d)", v, seq)
	}
}

func TestNodeListenDrainsUnderLock(t *testing.T) {
	in := NewTopic[int]("test_listen")
	n := NewNode("listen")
	s := Subscribe(n, in, 1)

	n.LockAll()
	in.Publish(3)
	done := make(chan int)
	go func() { done <- n.Listen() }()

	select {
	case <-done:
		t.Fatal("Listen must wait for the node lock")
	case <-time.After(20 * time.Millisecond):
	}
	n.UnlockAll()

	if got := <-done; got != 1 {
		t.Errorf("Expected 1 drained, got %d", got)
	}
	if s.Msg() != 3 {
		t.Errorf("Expected 3, got %d", s.Msg())
	}
}

func TestNodeLocksAreIndependent(t *testing.T) {
	a := NewNode("a")
	b := NewNode("b")

	a.LockAll()
	defer a.UnlockAll()

	done := make(chan struct{})
	go func() {
		b.LockAll()
		b.UnlockAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Locking one node must not block another")
	}
}

// ===== Poll Tests =====

func TestPollTimesOut(t *testing.T) {
	topic := NewTopic[int]("test_poll_timeout")
	sub := topic.Subscribe(1)

	start := time.Now()
	res := Poll(context.Background(), 30*time.Millisecond, sub)
	if res != PollTimeout {
		t.Errorf("Expected PollTimeout, got %v", res)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Poll returned too early: %v", elapsed)
	}
}

func TestPollWakesOnPublish(t *testing.T) {
	topic := NewTopic[int]("test_poll_wake")
	sub := topic.Subscribe(1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		topic.Publish(1)
	}()

	if res := Poll(context.Background(), time.Second, sub); res != PollData {
		t.Errorf("Expected PollData, got %v", res)
	}
}

func TestPollReturnsImmediatelyWhenPending(t *testing.T) {
	topic := NewTopic[int]("test_poll_pending")
	sub := topic.Subscribe(1)
	topic.Publish(1)
	sub.Drain()
	topic.Publish(2)

	if res := Poll(context.Background(), time.Second, sub); res != PollData {
		t.Errorf("Expected PollData, got %v", res)
	}
}

func TestPollIgnoresStaleSignal(t *testing.T) {
	topic := NewTopic[int]("test_poll_stale")
	sub := topic.Subscribe(1)
	topic.Publish(1)
	sub.Drain()
	if sub.Seen() != topic.Sequence() {
		t.Fatalf("Expected seen %d, got %d", topic.Sequence(), sub.Seen())
	}
	// signal with nothing behind it
	sub.notify()

	if res := Poll(context.Background(), 20*time.Millisecond, sub); res != PollTimeout {
		t.Errorf("Expected PollTimeout on stale signal, got %v", res)
	}
}

func TestPollMultipleSubscribers(t *testing.T) {
	a := NewTopic[int]("test_poll_multi_a")
	b := NewTopic[int]("test_poll_multi_b")
	sa := a.Subscribe(1)
	sb := b.Subscribe(1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Publish(1)
	}()

	if res := Poll(context.Background(), time.Second, sa, sb); res != PollData {
		t.Errorf("Expected PollData, got %v", res)
	}
	if !sb.UpdateAvailable() || sa.UpdateAvailable() {
		t.Error("Expected only b to have an update")
	}
}

func TestPollCancelled(t *testing.T) {
	topic := NewTopic[int]("test_poll_cancel")
	sub := topic.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if res := Poll(ctx, time.Second, sub); res != PollCancelled {
		t.Errorf("Expected PollCancelled, got %v", res)
	}
	if res := Poll(ctx, time.Second, sub); res != PollCancelled {
		t.Errorf("Expected PollCancelled on done context, got %v", res)
	}
}
