package schedule

import (
	"sync"
	"time"
)

// FakeEventScheduler is an EventScheduler with its own notion of time.
// Tests move time forward explicitly with AdvanceTo or AdvanceBy, and the
// headless player drains it with RunUntilIdle.
type FakeEventScheduler struct {
	mu  sync.Mutex
	now time.Time
	q   queue
}

var _ EventScheduler = (*FakeEventScheduler)(nil)

// NewFakeEventScheduler creates a fake scheduler starting at the given time.
func NewFakeEventScheduler(start time.Time) *FakeEventScheduler {
	return &FakeEventScheduler{
		now: start,
		q:   newQueue("fake-ev"),
	}
}

// Now returns the current fake simulation time.
func (s *FakeEventScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule registers a callback to run at the specified simulation time.
func (s *FakeEventScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.addLocked(at, f)
}

// After registers f to run d after the current fake time.
func (s *FakeEventScheduler) After(d time.Duration, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.addLocked(s.now.Add(d), f)
}

// Cancel attempts to cancel a previously scheduled event.
func (s *FakeEventScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.cancelLocked(id)
}

// Next returns the time of the earliest pending event.
func (s *FakeEventScheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.nextLocked()
}

// Pending returns the number of live events.
func (s *FakeEventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q.index)
}

// RunDue executes all events whose scheduled time is <= now.
func (s *FakeEventScheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := s.q.popDueLocked(s.now)
		s.mu.Unlock()
		if ev == nil {
			return
		}
		if ev.f != nil {
			ev.f()
		}
	}
}

// AdvanceTo moves fake time to t, firing due events in order. Each event
// runs with the clock set to its own deadline, so timers it arms are
// measured from that instant. Time is kept monotonic.
func (s *FakeEventScheduler) AdvanceTo(t time.Time) {
	for {
		s.mu.Lock()
		if t.Before(s.now) {
			s.mu.Unlock()
			return
		}
		ev := s.q.popDueLocked(t)
		if ev == nil {
			s.now = t
			s.mu.Unlock()
			return
		}
		if ev.when.After(s.now) {
			s.now = ev.when
		}
		s.mu.Unlock()
		if ev.f != nil {
			ev.f()
		}
	}
}

// AdvanceBy moves fake time forward by d and executes all due events.
func (s *FakeEventScheduler) AdvanceBy(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}

// RunUntilIdle repeatedly jumps to the next pending event until none
// remain or limit events have been processed. It returns the number of
// jumps taken.
func (s *FakeEventScheduler) RunUntilIdle(limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		at, ok := s.Next()
		if !ok {
			break
		}
		n++
		if at.Before(s.Now()) {
			s.RunDue()
			continue
		}
		s.AdvanceTo(at)
	}
	return n
}
