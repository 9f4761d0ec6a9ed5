package timers

import (
	"testing"
	"time"
)

func newTestTimers() (*Timers, *ManualClock) {
	clock := NewManualClock(time.Unix(0, 0))
	return New(clock), clock
}

func TestTimers_FiresAfterDelay(t *testing.T) {
	tm, clock := newTestTimers()
	fired := 0
	tm.Schedule("k", time.Second, func() { fired++ })

	clock.Advance(999 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired early")
	}
	clock.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}
	if tm.Pending("k") {
		t.Error("key should be cleared after firing")
	}
}

func TestTimers_RescheduleReplaces(t *testing.T) {
	tm, clock := newTestTimers()
	var got []string
	tm.Schedule("k", time.Second, func() { got = append(got, "first") })
	clock.Advance(500 * time.Millisecond)
	tm.Schedule("k", time.Second, func() { got = append(got, "second") })

	clock.Advance(600 * time.Millisecond)
	if len(got) != 0 {
		t.Fatalf("replaced timer should not fire, got %v", got)
	}
	clock.Advance(400 * time.Millisecond)
	if len(got) != 1 || got[0] != "second" {
		t.Fatalf("expected only second to fire, got %v", got)
	}
}

func TestTimers_Cancel(t *testing.T) {
	tm, clock := newTestTimers()
	fired := false
	tm.Schedule("k", time.Second, func() { fired = true })

	if !tm.Cancel("k") {
		t.Fatal("Cancel should report a pending timer")
	}
	if tm.Cancel("k") {
		t.Error("second Cancel should report nothing pending")
	}
	clock.Advance(2 * time.Second)
	if fired {
		t.Error("cancelled timer fired")
	}
}

func TestTimers_KeysAreIndependent(t *testing.T) {
	tm, clock := newTestTimers()
	var got []string
	tm.Schedule("a", time.Second, func() { got = append(got, "a") })
	tm.Schedule("b", 2*time.Second, func() { got = append(got, "b") })
	tm.Cancel("a")

	clock.Advance(3 * time.Second)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected [b], got %v", got)
	}
}

func TestTimers_StopRejectsNewSchedules(t *testing.T) {
	tm, clock := newTestTimers()
	fired := 0
	tm.Schedule("a", time.Second, func() { fired++ })
	tm.Stop()
	tm.Schedule("b", time.Second, func() { fired++ })

	clock.Advance(5 * time.Second)
	if fired != 0 {
		t.Fatalf("no timer should fire after Stop, got %d", fired)
	}
	if clock.Waiting() != 0 {
		t.Errorf("expected no armed timers, got %d", clock.Waiting())
	}
}

func TestTimers_KeysByPrefix(t *testing.T) {
	tm, _ := newTestTimers()
	tm.Schedule("autosave:1", time.Second, func() {})
	tm.Schedule("autosave:2", time.Second, func() {})
	tm.Schedule("realtime:reconnect", time.Second, func() {})

	if n := len(tm.Keys("autosave:")); n != 2 {
		t.Fatalf("expected 2 autosave keys, got %d", n)
	}
}

func TestManualClock_CallbackCanReschedule(t *testing.T) {
	tm, clock := newTestTimers()
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			tm.Schedule("tick", time.Second, tick)
		}
	}
	tm.Schedule("tick", time.Second, tick)

	clock.Advance(10 * time.Second)
	if count != 3 {
		t.Fatalf("expected 3 chained fires, got %d", count)
	}
}
