package sim

import (
	"testing"
	"time"

	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/model"
)

var epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func threeSteps() []model.Step {
	return []model.Step{
		{ID: "s1", From: model.NodeApp, To: model.NodeServer, Log: "one"},
		{ID: "s2", From: model.NodeServer, To: model.NodeCache, Log: "two", Pause: 400},
		{ID: "s3", From: model.NodeServer, To: model.NodeApp, Log: "three"},
	}
}

type playerRecorder struct {
	steps     []int
	completed []int
	finished  []time.Duration
}

func newTestPlayer(sched schedule.EventScheduler) (*Player, *playerRecorder) {
	rec := &playerRecorder{}
	p := NewPlayer(sched, nil, PlayerHooks{
		Step:     func(i int, _ model.Step) { rec.steps = append(rec.steps, i) },
		Complete: func(i int) { rec.completed = append(rec.completed, i) },
		Finish:   func(d time.Duration) { rec.finished = append(rec.finished, d) },
	}, nil)
	return p, rec
}

func TestPlayerLeadInThenSignalDriven(t *testing.T) {
	sched := schedule.NewFakeEventScheduler(epoch)
	p, rec := newTestPlayer(sched)

	if !p.Start(threeSteps()) {
		t.Fatalf("Start returned false on idle player")
	}
	if p.Index() != -1 || !p.Running() {
		t.Fatalf("after Start index=%d running=%v", p.Index(), p.Running())
	}

	sched.AdvanceBy(LeadIn - time.Millisecond)
	if len(rec.steps) != 0 {
		t.Fatalf("step activated before lead-in elapsed")
	}
	sched.AdvanceBy(time.Millisecond)
	if p.Index() != 0 {
		t.Fatalf("index = %d after lead-in, want 0", p.Index())
	}

	// No completion timer: the player waits for the signal indefinitely.
	sched.AdvanceBy(time.Minute)
	if p.Index() != 0 {
		t.Fatalf("advanced without completion signal")
	}

	if !p.StepComplete() {
		t.Fatalf("first StepComplete rejected")
	}
	sched.AdvanceBy(model.DefaultPauseMs * time.Millisecond)
	if p.Index() != 1 {
		t.Fatalf("index = %d after default pause, want 1", p.Index())
	}

	p.StepComplete()
	sched.AdvanceBy(399 * time.Millisecond)
	if p.Index() != 1 {
		t.Fatalf("explicit pause not honoured")
	}
	sched.AdvanceBy(time.Millisecond)
	if p.Index() != 2 {
		t.Fatalf("index = %d after explicit pause, want 2", p.Index())
	}

	p.StepComplete()
	sched.AdvanceBy(time.Second)
	if p.Running() || p.Index() != -1 {
		t.Fatalf("player still running after last step")
	}
	if len(rec.finished) != 1 {
		t.Fatalf("finish called %d times, want 1", len(rec.finished))
	}
	if want := time.Minute + LeadIn + 160*time.Millisecond + 400*time.Millisecond + 160*time.Millisecond; rec.finished[0] != want {
		t.Fatalf("elapsed = %v, want %v", rec.finished[0], want)
	}
}

func TestPlayerStepCompleteFirstSignalWins(t *testing.T) {
	sched := schedule.NewFakeEventScheduler(epoch)
	p, rec := newTestPlayer(sched)

	if p.StepComplete() {
		t.Fatalf("StepComplete accepted while idle")
	}

	p.Start(threeSteps())
	if p.StepComplete() {
		t.Fatalf("StepComplete accepted during lead-in")
	}
	sched.AdvanceBy(LeadIn)

	if !p.StepComplete() {
		t.Fatalf("first signal rejected")
	}
	if p.StepComplete() {
		t.Fatalf("duplicate signal accepted during pause")
	}
	sched.AdvanceBy(time.Second)
	if got := rec.steps; len(got) != 2 || got[1] != 1 {
		t.Fatalf("steps = %v, want [0 1]", got)
	}
	if len(rec.completed) != 1 {
		t.Fatalf("completed = %v, want one accepted signal", rec.completed)
	}
}

func TestPlayerStartWhileRunningIsNoop(t *testing.T) {
	sched := schedule.NewFakeEventScheduler(epoch)
	p, _ := newTestPlayer(sched)

	p.Start(threeSteps())
	runID := p.RunID()
	if p.Start(threeSteps()[:1]) {
		t.Fatalf("second Start accepted")
	}
	if p.RunID() != runID || p.Len() != 3 {
		t.Fatalf("second Start changed state")
	}
}

func TestPlayerResetDropsPendingTimers(t *testing.T) {
	sched := schedule.NewFakeEventScheduler(epoch)
	p, rec := newTestPlayer(sched)
	p.SetCompletionTimer(func() time.Duration { return 500 * time.Millisecond })

	p.Start(threeSteps())
	sched.AdvanceBy(LeadIn + 500*time.Millisecond)
	p.Reset()

	if sched.Pending() != 0 {
		t.Fatalf("Pending() = %d after Reset", sched.Pending())
	}
	sched.AdvanceBy(time.Minute)
	if len(rec.steps) != 1 || len(rec.finished) != 0 {
		t.Fatalf("stale timer fired after reset: steps=%v finished=%v", rec.steps, rec.finished)
	}
	if p.Running() || p.Active() != nil {
		t.Fatalf("player not idle after Reset")
	}

	if !p.Start(threeSteps()) {
		t.Fatalf("Start after Reset rejected")
	}
}

func TestPlayerCompletionTimerDrivesRun(t *testing.T) {
	sched := schedule.NewFakeEventScheduler(epoch)
	p, rec := newTestPlayer(sched)
	p.SetCompletionTimer(func() time.Duration { return 680 * time.Millisecond })

	p.Start(threeSteps())
	sched.RunUntilIdle(0)

	if len(rec.steps) != 3 || len(rec.finished) != 1 {
		t.Fatalf("steps=%v finished=%v", rec.steps, rec.finished)
	}
	// Timer-driven completions reach the hook like explicit signals.
	if len(rec.completed) != 3 || rec.completed[2] != 2 {
		t.Fatalf("completed = %v, want [0 1 2]", rec.completed)
	}
	want := LeadIn + 3*680*time.Millisecond + 160*time.Millisecond + 400*time.Millisecond + 160*time.Millisecond
	if rec.finished[0] != want {
		t.Fatalf("elapsed = %v, want %v", rec.finished[0], want)
	}
}

func TestPlayerEmptySequenceFinishesAfterLeadIn(t *testing.T) {
	sched := schedule.NewFakeEventScheduler(epoch)
	p, rec := newTestPlayer(sched)

	p.Start(nil)
	sched.AdvanceBy(LeadIn)
	if p.Running() || len(rec.finished) != 1 || rec.finished[0] != LeadIn {
		t.Fatalf("empty run did not finish cleanly: running=%v finished=%v", p.Running(), rec.finished)
	}
}
