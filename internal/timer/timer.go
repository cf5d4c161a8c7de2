// Package timer provides cancellable scheduled callbacks.
package timer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Info describes a pending timer.
type Info struct {
	ID          string
	Description string
	ScheduledAt time.Time
	ExpiresAt   time.Time
	Remaining   time.Duration
	Repeating   bool
}

type entry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
	description string
	interval    time.Duration
}

// SimpleTimer runs callbacks on their own goroutines after a delay. Pending
// callbacks can be cancelled individually or all at once.
type SimpleTimer struct {
	mu     sync.Mutex
	timers map[string]*entry
	nextID int64
}

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{timers: make(map[string]*entry)}
}

// ScheduleAfter runs fn once after delay and returns the timer id.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, description string, fn func()) string {
	return t.schedule(delay, 0, description, fn)
}

// ScheduleEvery runs fn every interval until the returned id is cancelled.
func (t *SimpleTimer) ScheduleEvery(interval time.Duration, description string, fn func()) string {
	if interval <= 0 {
		panic("timer: non-positive interval")
	}
	return t.schedule(interval, interval, description, fn)
}

func (t *SimpleTimer) schedule(delay, interval time.Duration, description string, fn func()) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)
	now := time.Now()
	e := &entry{
		scheduledAt: now,
		expiresAt:   now.Add(delay),
		description: description,
		interval:    interval,
	}
	// The entry is registered before AfterFunc can fire, under the same lock
	// the callback takes.
	e.timer = time.AfterFunc(delay, func() { t.fire(id, e, fn) })
	t.timers[id] = e
	slog.Debug("SimpleTimer.ScheduleAfter", "id", id, "delay", delay, "description", description, "repeating", interval > 0)
	return id
}

func (t *SimpleTimer) fire(id string, e *entry, fn func()) {
	t.mu.Lock()
	if t.timers[id] != e {
		// cancelled between expiry and this callback
		t.mu.Unlock()
		return
	}
	if e.interval > 0 {
		now := time.Now()
		e.scheduledAt = now
		e.expiresAt = now.Add(e.interval)
		e.timer.Reset(e.interval)
	} else {
		delete(t.timers, id)
	}
	t.mu.Unlock()

	fn()
}

// Cancel stops the timer with id. It reports whether a pending timer was found.
func (t *SimpleTimer) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.timers[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.timers, id)
	slog.Debug("SimpleTimer.Cancel", "id", id)
	return true
}

// Stop cancels all scheduled timers.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.timers {
		e.timer.Stop()
	}
	if len(t.timers) > 0 {
		slog.Debug("SimpleTimer.Stop: cancelled pending timers", "count", len(t.timers))
	}
	t.timers = make(map[string]*entry)
}

// Pending returns the number of scheduled timers.
func (t *SimpleTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// ListActive returns information about all pending timers.
func (t *SimpleTimer) ListActive() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	result := make([]Info, 0, len(t.timers))
	for id, e := range t.timers {
		remaining := e.expiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, Info{
			ID:          id,
			Description: e.description,
			ScheduledAt: e.scheduledAt,
			ExpiresAt:   e.expiresAt,
			Remaining:   remaining,
			Repeating:   e.interval > 0,
		})
	}
	return result
}
