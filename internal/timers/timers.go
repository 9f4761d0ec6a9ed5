package timers

import (
	"sync"
	"time"
)

// Timers is a set of one-shot timers addressed by key. At most one timer is
// pending per key; scheduling again replaces the previous one.
type Timers struct {
	clock Clock

	mu      sync.Mutex
	entries map[string]*entry
	nextID  uint64
	stopped bool
}

type entry struct {
	id    uint64
	timer Timer
}

func New(clock Clock) *Timers {
	if clock == nil {
		clock = RealClock{}
	}
	return &Timers{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Clock returns the clock the timers run on.
func (t *Timers) Clock() Clock {
	return t.clock
}

// Schedule arms fn to run after d under key, cancelling any timer already
// pending for that key. A callback whose timer was replaced or cancelled
// before it ran is never invoked.
func (t *Timers) Schedule(key string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if prev, ok := t.entries[key]; ok {
		prev.timer.Stop()
	}

	t.nextID++
	id := t.nextID
	e := &entry{id: id}
	e.timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		cur, ok := t.entries[key]
		if !ok || cur.id != id {
			t.mu.Unlock()
			return
		}
		delete(t.entries, key)
		t.mu.Unlock()

		fn()
	})
	t.entries[key] = e
}

// Cancel stops the timer pending under key. It reports whether one was pending.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, key)
	return true
}

// Pending reports whether a timer is armed under key.
func (t *Timers) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// Keys lists pending keys with the given prefix.
func (t *Timers) Keys(prefix string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var keys []string
	for k := range t.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys
}

// Stop cancels every pending timer and rejects further scheduling.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.stopped = true
}
