// Package retry holds the retry policy shared by the notification channel's
// reconnect loop and the intake report-retry action.
package retry

import (
	"fmt"
	"time"
)

// Strategy returns the delay before retry attempt n, counted from 1.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Linear waits the same duration before every attempt.
type Linear time.Duration

func (l Linear) Delay(int) time.Duration { return time.Duration(l) }

// Exponential doubles Base for each attempt after the first, capped at Max.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// maxShift bounds the doubling loop so large attempt numbers cannot overflow.
const maxShift = 30

func (e Exponential) Delay(attempt int) time.Duration {
	delay := e.Base
	if attempt <= 1 {
		return delay
	}
	for i := 1; i < attempt && i < maxShift; i++ {
		delay *= 2
		if e.Max > 0 && delay >= e.Max {
			return e.Max
		}
	}
	return delay
}

// Policy bounds how many times an operation is retried and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts int
	Delay       Strategy
}

// Default reconnect settings for the notification channel.
const (
	DefaultMaxAttempts = 5
	DefaultDelay       = 5 * time.Second
)

// DefaultPolicy is five attempts with a fixed five second delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: Linear(DefaultDelay)}
}

// Attempt reports whether retry attempt n (counted from 1) is allowed and how
// long to wait before making it.
func (p Policy) Attempt(n int) (time.Duration, bool) {
	if n < 1 || n > p.MaxAttempts {
		return 0, false
	}
	if p.Delay == nil {
		return 0, true
	}
	return p.Delay.Delay(n), true
}

// Validate rejects policies that can never run.
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative, got %d", p.MaxAttempts)
	}
	return nil
}

// Counter tracks attempts against a policy. It is not safe for concurrent use.
type Counter struct {
	policy   Policy
	attempts int
}

// NewCounter starts counting attempts for p.
func NewCounter(p Policy) *Counter {
	return &Counter{policy: p}
}

// Next consumes one attempt. ok is false once the policy is exhausted.
func (c *Counter) Next() (attempt int, delay time.Duration, ok bool) {
	delay, ok = c.policy.Attempt(c.attempts + 1)
	if !ok {
		return c.attempts, 0, false
	}
	c.attempts++
	return c.attempts, delay, true
}

// Attempts returns the number of attempts consumed so far.
func (c *Counter) Attempts() int { return c.attempts }

// Exhausted reports whether no attempts remain.
func (c *Counter) Exhausted() bool { return c.attempts >= c.policy.MaxAttempts }

// Reset returns the counter to zero attempts.
func (c *Counter) Reset() { c.attempts = 0 }
