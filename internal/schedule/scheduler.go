// Package schedule runs callbacks at simulation times against a SimClock.
// Every timer the playback engine arms (lead-in, inter-step pause,
// completion fallback, hint expiry) goes through an EventScheduler so it
// can be cancelled by id and driven deterministically in tests.
package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/sysviz/timectrl"
)

// EventScheduler schedules callbacks to run at specific simulation times.
//
// The serving loop advances time with a timectrl.TimeController and calls
// RunDue after each advance. Playback code uses After and Cancel to manage
// its timers.
type EventScheduler interface {
	// Schedule registers a callback f to run at simulation time 'at'.
	// It returns an opaque event ID that can be used to cancel the event.
	Schedule(at time.Time, f func()) (id string)

	// After registers f to run d after the current simulation time.
	After(d time.Duration, f func()) (id string)

	// Cancel attempts to cancel a previously scheduled event. It reports
	// whether a pending event was cancelled; unknown or already-run IDs are
	// a no-op.
	Cancel(id string) bool

	// Now returns the current simulation time.
	Now() time.Time

	// Next returns the time of the earliest pending event.
	Next() (time.Time, bool)

	// Pending returns the number of events not yet run or cancelled.
	Pending() int

	// RunDue executes all events whose scheduled time is <= Now().
	// Already-run events never run again.
	RunDue()
}

type scheduledEvent struct {
	id        string
	when      time.Time
	seq       uint64
	f         func()
	cancelled bool
}

// queue holds events ordered by time, then by insertion. It is shared by the
// clock-backed scheduler and the fake.
type queue struct {
	prefix  string
	counter uint64
	events  []*scheduledEvent
	index   map[string]*scheduledEvent
}

func newQueue(prefix string) queue {
	return queue{prefix: prefix, index: make(map[string]*scheduledEvent)}
}

func (q *queue) addLocked(at time.Time, f func()) string {
	q.counter++
	ev := &scheduledEvent{
		id:   fmt.Sprintf("%s-%d", q.prefix, q.counter),
		when: at,
		seq:  q.counter,
		f:    f,
	}

	// Equal deadlines keep insertion order.
	idx := sort.Search(len(q.events), func(i int) bool {
		return q.events[i].when.After(at)
	})
	q.events = append(q.events, nil)
	copy(q.events[idx+1:], q.events[idx:])
	q.events[idx] = ev

	q.index[ev.id] = ev
	return ev.id
}

func (q *queue) cancelLocked(id string) bool {
	ev, ok := q.index[id]
	if !ok {
		return false
	}
	// Removal from events is lazy; popDueLocked skips cancelled entries.
	ev.cancelled = true
	delete(q.index, id)
	return true
}

func (q *queue) nextLocked() (time.Time, bool) {
	for len(q.events) > 0 && q.events[0].cancelled {
		q.events = q.events[1:]
	}
	if len(q.events) == 0 {
		return time.Time{}, false
	}
	return q.events[0].when, true
}

func (q *queue) popDueLocked(now time.Time) *scheduledEvent {
	for len(q.events) > 0 {
		ev := q.events[0]
		if ev.cancelled {
			q.events = q.events[1:]
			continue
		}
		if ev.when.After(now) {
			return nil
		}
		q.events = q.events[1:]
		delete(q.index, ev.id)
		return ev
	}
	return nil
}

// eventScheduler is the SimClock-backed EventScheduler.
type eventScheduler struct {
	clock timectrl.SimClock

	mu sync.Mutex
	q  queue
}

// NewEventScheduler creates a new event scheduler backed by the given
// SimClock, usually a timectrl.TimeController.
func NewEventScheduler(clock timectrl.SimClock) EventScheduler {
	return &eventScheduler{
		clock: clock,
		q:     newQueue("ev"),
	}
}

func (s *eventScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.addLocked(at, f)
}

func (s *eventScheduler) After(d time.Duration, f func()) string {
	return s.Schedule(s.clock.Now().Add(d), f)
}

func (s *eventScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.cancelLocked(id)
}

func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *eventScheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.nextLocked()
}

func (s *eventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q.index)
}

func (s *eventScheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := s.q.popDueLocked(s.clock.Now())
		s.mu.Unlock()
		if ev == nil {
			return
		}
		// Callbacks run outside the lock so they may schedule or cancel.
		if ev.f != nil {
			ev.f()
		}
	}
}
