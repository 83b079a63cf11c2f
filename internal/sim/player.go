package sim

import (
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/model"
)

// LeadIn is the delay between starting a run and activating its first step.
const LeadIn = 300 * time.Millisecond

// PlayerHooks are invoked by the Player from inside the owning simulator's
// critical section.
type PlayerHooks struct {
	// Step runs when step i becomes active.
	Step func(i int, s model.Step)
	// Complete runs when step i's completion is accepted, whichever
	// source sent it.
	Complete func(i int)
	// Finish runs after the last step completes, with the run's elapsed
	// time measured on the scheduler clock.
	Finish func(elapsed time.Duration)
}

// Player drives one step sequence through time: one active step at a time,
// advanced by a completion signal and a per-step pause.
//
// Player is not safe for concurrent use. Its owner serializes calls and
// supplies exec, which every timer callback is routed through so that fires
// take the same lock as public calls.
type Player struct {
	sched schedule.EventScheduler
	exec  func(func())
	hooks PlayerHooks

	// pauseFor returns the wait between a step's completion and the next
	// step's activation.
	pauseFor func(model.Step) time.Duration
	// completeAfter, when set, arms a fallback completion timer for each
	// step. It is nil when an external renderer sends the signal.
	completeAfter func() time.Duration

	steps    []model.Step
	index    int
	running  bool
	awaiting bool
	runID    string
	start    time.Time

	// gen is bumped on Reset so a timer from an earlier run is dropped.
	gen       uint64
	pending   string
	animTimer string
}

// NewPlayer constructs an idle Player. exec may be nil when callers hold
// no lock of their own.
func NewPlayer(sched schedule.EventScheduler, exec func(func()), hooks PlayerHooks, pauseFor func(model.Step) time.Duration) *Player {
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	if pauseFor == nil {
		pauseFor = func(s model.Step) time.Duration {
			if s.HasPause() {
				return time.Duration(s.Pause) * time.Millisecond
			}
			return model.DefaultPauseMs * time.Millisecond
		}
	}
	return &Player{
		sched:    sched,
		exec:     exec,
		hooks:    hooks,
		pauseFor: pauseFor,
		index:    -1,
	}
}

// SetCompletionTimer installs the fallback completion delay. A nil func
// leaves advancing entirely to StepComplete callers.
func (p *Player) SetCompletionTimer(fn func() time.Duration) {
	p.completeAfter = fn
}

// Start loads steps and schedules the first advance after LeadIn. It
// reports false, changing nothing, when a run is already in flight.
func (p *Player) Start(steps []model.Step) bool {
	if p.running {
		return false
	}
	p.cancelTimers()
	p.gen++
	p.steps = steps
	p.index = -1
	p.awaiting = false
	p.running = true
	p.runID = uuid.NewString()
	p.start = p.sched.Now()
	p.pending = p.after(LeadIn, func() { p.advance(0) })
	return true
}

func (p *Player) advance(i int) {
	p.pending = ""
	if i >= len(p.steps) {
		elapsed := p.sched.Now().Sub(p.start)
		p.index = -1
		p.awaiting = false
		p.running = false
		if p.hooks.Finish != nil {
			p.hooks.Finish(elapsed)
		}
		return
	}

	p.index = i
	p.awaiting = true
	if p.hooks.Step != nil {
		p.hooks.Step(i, p.steps[i])
	}
	if p.completeAfter != nil {
		p.animTimer = p.after(p.completeAfter(), func() {
			p.animTimer = ""
			p.StepComplete()
		})
	}
}

// StepComplete acknowledges the active step's animation and schedules the
// next advance after the step's pause. Only the first signal per step is
// accepted; stale or duplicate signals report false.
func (p *Player) StepComplete() bool {
	if !p.running || p.index < 0 || !p.awaiting {
		return false
	}
	p.awaiting = false
	if p.animTimer != "" {
		p.sched.Cancel(p.animTimer)
		p.animTimer = ""
	}
	if p.hooks.Complete != nil {
		p.hooks.Complete(p.index)
	}
	next := p.index + 1
	p.pending = p.after(p.pauseFor(p.steps[p.index]), func() { p.advance(next) })
	return true
}

// Reset cancels every pending timer and returns the Player to idle. It is
// valid in any state.
func (p *Player) Reset() {
	p.cancelTimers()
	p.gen++
	p.steps = nil
	p.index = -1
	p.awaiting = false
	p.running = false
}

// Running reports whether a run is in flight, lead-in and pauses included.
func (p *Player) Running() bool { return p.running }

// Index is the active step index, or -1.
func (p *Player) Index() int { return p.index }

// Len is the length of the loaded sequence.
func (p *Player) Len() int { return len(p.steps) }

// RunID identifies the current or most recent run.
func (p *Player) RunID() string { return p.runID }

// Active returns a copy of the active step, or nil.
func (p *Player) Active() *model.Step {
	if p.index < 0 || p.index >= len(p.steps) {
		return nil
	}
	s := p.steps[p.index]
	return &s
}

func (p *Player) after(d time.Duration, fn func()) string {
	gen := p.gen
	return p.sched.After(d, func() {
		p.exec(func() {
			if p.gen != gen {
				return
			}
			fn()
		})
	})
}

func (p *Player) cancelTimers() {
	if p.pending != "" {
		p.sched.Cancel(p.pending)
		p.pending = ""
	}
	if p.animTimer != "" {
		p.sched.Cancel(p.animTimer)
		p.animTimer = ""
	}
}
