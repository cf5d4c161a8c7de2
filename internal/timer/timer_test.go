package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleAfterRunsOnce(t *testing.T) {
	tm := NewSimpleTimer()
	defer tm.Stop()

	done := make(chan struct{})
	var calls int32
	tm.ScheduleAfter(10*time.Millisecond, "once", func() {
		atomic.AddInt32(&calls, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if tm.Pending() != 0 {
		t.Errorf("Pending() = %d after firing", tm.Pending())
	}
}

func TestCancelPreventsCallback(t *testing.T) {
	tm := NewSimpleTimer()
	defer tm.Stop()

	var fired int32
	id := tm.ScheduleAfter(50*time.Millisecond, "cancelled", func() { atomic.StoreInt32(&fired, 1) })
	if !tm.Cancel(id) {
		t.Fatal("Cancel should find the pending timer")
	}
	if tm.Cancel(id) {
		t.Error("second Cancel should report nothing pending")
	}
	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("cancelled timer fired")
	}
}

func TestScheduleEveryRepeatsUntilCancelled(t *testing.T) {
	tm := NewSimpleTimer()
	defer tm.Stop()

	var calls int32
	id := tm.ScheduleEvery(10*time.Millisecond, "heartbeat", func() { atomic.AddInt32(&calls, 1) })

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Fatalf("repeating timer fired %d times", calls)
	}
	tm.Cancel(id)
	after := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got > after+1 {
		t.Errorf("timer kept firing after cancel: %d -> %d", after, got)
	}
}

func TestStopAndListActive(t *testing.T) {
	tm := NewSimpleTimer()
	tm.ScheduleAfter(time.Hour, "reconnect", func() {})
	tm.ScheduleEvery(time.Hour, "heartbeat", func() {})

	active := tm.ListActive()
	if len(active) != 2 {
		t.Fatalf("ListActive() returned %d entries", len(active))
	}
	for _, info := range active {
		if info.Remaining <= 0 || info.Remaining > time.Hour {
			t.Errorf("unexpected remaining %v for %s", info.Remaining, info.ID)
		}
		if info.Repeating != (info.Description == "heartbeat") {
			t.Errorf("Repeating = %v for %s", info.Repeating, info.Description)
		}
	}

	tm.Stop()
	if tm.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop", tm.Pending())
	}
}
