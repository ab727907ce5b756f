package events

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestOneShotEventFiresOnce(t *testing.T) {
	e := New(5*time.Millisecond, nil)
	e.Start()
	defer e.Stop()

	var count int32
	done := make(chan struct{})
	_, err := e.Schedule(1, "once", 0, 0, func(ev *ScheduledEvent) error {
		atomic.AddInt32(&count, 1)
		close(done)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for one-shot event")
	}
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected exactly one invocation, got %d", count)
	}
}

func TestIntervalEventNeverAnticipatesDeadline_I4(t *testing.T) {
	e := New(5*time.Millisecond, nil)
	e.Start()
	defer e.Stop()

	interval := 50 * time.Millisecond
	var lastFire time.Time
	var minGap time.Duration = time.Hour
	var fires int32

	id, err := e.Schedule(1, "periodic", 0, interval, func(ev *ScheduledEvent) error {
		now := time.Now()
		if !lastFire.IsZero() {
			gap := now.Sub(lastFire)
			if gap < minGap {
				minGap = gap
			}
		}
		lastFire = now
		atomic.AddInt32(&fires, 1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	time.Sleep(220 * time.Millisecond)
	if err := e.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	n := atomic.LoadInt32(&fires)
	if n < 3 || n > 6 {
		t.Fatalf("expected roughly 4-5 invocations in 220ms at 50ms interval, got %d", n)
	}
	if minGap < interval-5*time.Millisecond {
		t.Fatalf("expected ticks never to anticipate the interval, got gap %v for interval %v", minGap, interval)
	}
}

func TestCancelStopsFurtherInvocations_S5(t *testing.T) {
	e := New(5*time.Millisecond, nil)
	e.Start()
	defer e.Stop()

	var fires int32
	id, err := e.Schedule(1, "periodic", 0, 50*time.Millisecond, func(ev *ScheduledEvent) error {
		atomic.AddInt32(&fires, 1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	time.Sleep(220 * time.Millisecond)
	if err := e.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	afterCancel := atomic.LoadInt32(&fires)

	time.Sleep(200 * time.Millisecond)
	if atomic.LoadInt32(&fires) != afterCancel {
		t.Fatalf("expected no further invocations after cancel")
	}
	if afterCancel < 3 || afterCancel > 5 {
		t.Fatalf("expected 3-5 invocations before cancel, got %d", afterCancel)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	e := New(5*time.Millisecond, nil)
	e.Start()
	defer e.Stop()

	id, _ := e.Schedule(1, "once", time.Hour, 0, func(ev *ScheduledEvent) error { return nil }, nil)
	if err := e.Cancel(id); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := e.Cancel(id); err != nil {
		t.Fatalf("second cancel should be idempotent: %v", err)
	}
}

func TestStopDrainsRemoveCallbacks(t *testing.T) {
	e := New(5*time.Millisecond, nil)
	e.Start()

	removed := make(chan int64, 1)
	_, err := e.Schedule(1, "never-fires", time.Hour, 0, func(ev *ScheduledEvent) error { return nil }, func(ev *ScheduledEvent) {
		removed <- ev.ID
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	e.Stop()

	select {
	case <-removed:
	default:
		t.Fatal("expected remove callback to fire during drain")
	}
}

func TestEnqueueWaitRunsSynchronously(t *testing.T) {
	e := New(5*time.Millisecond, nil)
	e.Start()
	defer e.Stop()

	var ran bool
	if err := e.EnqueueWait(func() { ran = true }); err != nil {
		t.Fatalf("enqueueWait: %v", err)
	}
	if !ran {
		t.Fatalf("expected command to have run")
	}
}

func TestEnqueueAfterStopReturnsShuttingDown(t *testing.T) {
	e := New(5*time.Millisecond, nil)
	e.Start()
	e.Stop()

	if err := e.Enqueue(func() {}); err == nil {
		t.Fatalf("expected shutting-down error after Stop")
	}
}
