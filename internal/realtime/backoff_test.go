package realtime

import (
	"testing"
	"time"
)

func TestPolicy_DelaySequence(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for attempts, w := range want {
		if got := p.Delay(attempts); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempts, got, w)
		}
	}
}

func TestPolicy_LargeAttemptsStayCapped(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Delay(500); got != DefaultMaxDelay {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := p.Delay(-3); got != DefaultBaseDelay {
		t.Fatalf("negative attempts should use base, got %v", got)
	}
}

func TestPolicy_ZeroValueUsesDefaults(t *testing.T) {
	var p Policy
	if got := p.Delay(1); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}
}
