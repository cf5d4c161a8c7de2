package retry

import (
	"testing"
	"time"
)

func TestLinearDelay(t *testing.T) {
	p := DefaultPolicy()
	for n := 1; n <= DefaultMaxAttempts; n++ {
		delay, ok := p.Attempt(n)
		if !ok || delay != DefaultDelay {
			t.Errorf("Attempt(%d) = (%v, %v), want (%v, true)", n, delay, ok, DefaultDelay)
		}
	}
	if _, ok := p.Attempt(DefaultMaxAttempts + 1); ok {
		t.Error("attempt past the cap should be refused")
	}
	if _, ok := p.Attempt(0); ok {
		t.Error("attempt 0 should be refused")
	}
}

func TestExponentialDelay(t *testing.T) {
	e := Exponential{Base: time.Second, Max: 10 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{100, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestZeroAttemptPolicy(t *testing.T) {
	p := Policy{MaxAttempts: 0, Delay: Linear(time.Second)}
	if _, ok := p.Attempt(1); ok {
		t.Error("zero-attempt policy allowed an attempt")
	}
	if err := (Policy{MaxAttempts: -1}).Validate(); err == nil {
		t.Error("expected validation error for negative attempts")
	}
}

func TestCounter(t *testing.T) {
	c := NewCounter(Policy{MaxAttempts: 2, Delay: Linear(time.Millisecond)})
	for want := 1; want <= 2; want++ {
		n, delay, ok := c.Next()
		if !ok || n != want || delay != time.Millisecond {
			t.Fatalf("Next() = (%d, %v, %v), want (%d, 1ms, true)", n, delay, ok, want)
		}
	}
	if !c.Exhausted() {
		t.Error("counter should be exhausted")
	}
	if _, _, ok := c.Next(); ok {
		t.Error("Next past the cap should fail")
	}
	if c.Attempts() != 2 {
		t.Errorf("Attempts() = %d", c.Attempts())
	}
	c.Reset()
	if c.Exhausted() || c.Attempts() != 0 {
		t.Error("Reset did not clear attempts")
	}
}
