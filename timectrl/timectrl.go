package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is the clock abstraction the playback engine depends on, so that
// tests and the headless player can substitute their own notion of time.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time, one Tick per tick.
	RealTime Mode = iota
	// Accelerated jumps straight to the next pending deadline without
	// sleeping, and stops once nothing is pending.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController drives simulation time and notifies registered listeners.
// It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	listeners   []func(time.Time)

	// next reports the earliest pending deadline; only Accelerated uses it.
	next func() (time.Time, bool)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves simulation time directly. Listeners are not notified.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked after every time advance.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// SetNextDeadline installs the source of pending deadlines consulted in
// Accelerated mode, typically an event scheduler's Next method.
func (tc *TimeController) SetNextDeadline(fn func() (time.Time, bool)) {
	tc.mu.Lock()
	tc.next = fn
	tc.mu.Unlock()
}

// Run advances time until ctx is cancelled. In Accelerated mode it also
// returns as soon as no deadline is pending.
func (tc *TimeController) Run(ctx context.Context) error {
	if tc.Mode == Accelerated {
		return tc.runAccelerated(ctx)
	}

	ticker := time.NewTicker(tc.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wall := <-ticker.C:
			// Real time tracks the wall clock rather than counting ticks, so
			// a slow listener does not make simulated time drift.
			tc.advance(wall)
		}
	}
}

func (tc *TimeController) runAccelerated(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tc.mu.RLock()
		next := tc.next
		tc.mu.RUnlock()
		if next == nil {
			return nil
		}
		at, ok := next()
		if !ok {
			return nil
		}
		if now := tc.Now(); at.Before(now) {
			at = now
		}
		tc.advance(at)
	}
}

func (tc *TimeController) advance(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
}
