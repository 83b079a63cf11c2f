// Package sim hosts the playback engine and the two scenario simulators.
// A simulator owns one configuration, one Player, the cumulative stats, the
// event log and the description caption, and serializes every transition
// (public calls and timer fires) behind a single mutex.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/sysviz/internal/eventlog"
	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/sysviz/internal/sim"

var (
	// ErrUnknownScenario indicates a scenario name with no simulator.
	ErrUnknownScenario = errors.New("unknown scenario")
	// ErrInvalidConfig indicates a configuration payload failed validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrRunning indicates a configuration change was attempted mid-run.
	ErrRunning = errors.New("simulation is running")
)

// Captions shown outside of step descriptions.
const (
	CaptionStarting = "Starting…"
	CaptionComplete = "Simulation complete ✓"
)

// HintDuration is how long a first-time hint stays visible.
const HintDuration = 5 * time.Second

// RendererMode selects who produces the per-step completion signal.
type RendererMode int

const (
	// RendererInternal arms a completion timer of step duration plus the
	// grace period for every step.
	RendererInternal RendererMode = iota
	// RendererExternal waits for an explicit StepComplete call.
	RendererExternal
)

func (m RendererMode) String() string {
	if m == RendererExternal {
		return "external"
	}
	return "internal"
}

// ParseRendererMode accepts "internal" and "external".
func ParseRendererMode(s string) (RendererMode, error) {
	switch s {
	case "", "internal":
		return RendererInternal, nil
	case "external":
		return RendererExternal, nil
	}
	return RendererInternal, fmt.Errorf("renderer mode %q: %w", s, ErrInvalidConfig)
}

// Simulator is the control surface shared by both scenarios.
type Simulator interface {
	Scenario() model.Scenario
	// Run starts a run; false when one is already in flight.
	Run(ctx context.Context) bool
	// Reset cancels any run and clears logs and cumulative stats.
	Reset(ctx context.Context)
	// StepComplete is the renderer's completion signal for the active step.
	StepComplete(ctx context.Context) bool
	// Configure applies a partial JSON configuration document.
	Configure(ctx context.Context, patch []byte) error
	Snapshot() Snapshot
	// Subscribe registers fn for a snapshot after every transition.
	Subscribe(fn Observer) (unsubscribe func())
	Close()
}

// Observer receives snapshots outside the simulator lock.
type Observer func(Snapshot)

// HintProvider hands out first-time hints for log entry types. Claim
// returns a hint at most once per term.
type HintProvider interface {
	Claim(ctx context.Context, typ model.LogType) (model.Hint, bool)
}

// MetricsRecorder receives run and step events for export.
type MetricsRecorder interface {
	RunStarted(sc model.Scenario)
	StepActivated(sc model.Scenario, typ model.LogType)
	RunFinished(sc model.Scenario, outcome string, elapsed time.Duration)
	SetCacheHitRate(percent float64)
	SetServerCounts(counts map[model.ServerID]int)
}

// Run outcomes reported to MetricsRecorder.
const (
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
	OutcomeWrite  = "write"
	OutcomeRouted = "routed"
	OutcomeFailed = "failed"
)

type options struct {
	log      logging.Logger
	metrics  MetricsRecorder
	hints    HintProvider
	renderer RendererMode
	tracer   trace.Tracer
	now      func() time.Time
}

// Option customises simulator construction.
type Option func(*options)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithHints attaches a first-time hint provider.
func WithHints(h HintProvider) Option {
	return func(o *options) { o.hints = h }
}

// WithRenderer selects the completion signal source.
func WithRenderer(m RendererMode) Option {
	return func(o *options) { o.renderer = m }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithWallClock sets the clock used for log timestamps. Run timing always
// follows the scheduler clock.
func WithWallClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(sched schedule.EventScheduler, opts []Option) options {
	o := options{renderer: RendererInternal}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.log == nil {
		o.log = logging.Noop()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.now == nil {
		o.now = sched.Now
	}
	return o
}

// session is the machinery both simulators share: lock, player, log,
// caption, hint, observers and the run span.
type session struct {
	mu       sync.Mutex
	scenario model.Scenario
	sched    schedule.EventScheduler
	opts     options
	player   *Player
	log      *eventlog.Recorder

	caption   string
	doneCount int
	hint      *model.Hint
	hintTimer string

	runCtx context.Context
	span   trace.Span

	nextObserver int
	observers    map[int]Observer
	closed       bool

	// snapshotLocked builds the scenario-specific view; set by the owner.
	snapshotLocked func() Snapshot
}

func newSession(sc model.Scenario, sched schedule.EventScheduler, opts options) *session {
	return &session{
		scenario:  sc,
		sched:     sched,
		opts:      opts,
		log:       eventlog.NewRecorder(opts.now),
		runCtx:    context.Background(),
		observers: make(map[int]Observer),
	}
}

// exec runs fn under the session lock and then notifies observers. Timer
// callbacks and public mutators both go through it.
func (s *session) exec(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn()
	snap, observers := s.publishLocked()
	s.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
}

func (s *session) publishLocked() (Snapshot, []Observer) {
	if len(s.observers) == 0 || s.snapshotLocked == nil {
		return Snapshot{}, nil
	}
	observers := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObserver; i++ {
		if o, ok := s.observers[i]; ok {
			observers = append(observers, o)
		}
	}
	return s.snapshotLocked(), observers
}

func (s *session) Scenario() model.Scenario { return s.scenario }

func (s *session) Subscribe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *session) StepComplete(ctx context.Context) bool {
	var accepted bool
	s.exec(func() {
		accepted = s.player.StepComplete()
		if !accepted {
			s.opts.log.Debug(ctx, "ignored completion signal",
				logging.String("scenario", string(s.scenario)),
				logging.Int("index", s.player.Index()),
			)
		}
	})
	return accepted
}

// Close cancels pending timers and stops notifying observers.
func (s *session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.player.Reset()
	s.clearHintLocked()
	s.endSpanLocked(errors.New("simulator closed"))
	s.closed = true
	s.observers = map[int]Observer{}
}

func (s *session) appendLogLocked(msg string, typ model.LogType) model.LogEntry {
	entry := s.log.Append(msg, typ)
	if s.opts.hints != nil {
		if h, ok := s.opts.hints.Claim(s.runCtx, typ); ok {
			s.showHintLocked(h)
		}
	}
	return entry
}

func (s *session) showHintLocked(h model.Hint) {
	if s.hintTimer != "" {
		s.sched.Cancel(s.hintTimer)
	}
	s.hint = &h
	s.hintTimer = s.sched.After(HintDuration, func() {
		s.exec(func() {
			s.hint = nil
			s.hintTimer = ""
		})
	})
}

func (s *session) clearHintLocked() {
	if s.hintTimer != "" {
		s.sched.Cancel(s.hintTimer)
		s.hintTimer = ""
	}
	s.hint = nil
}

// beginRunLocked logs the run header and opens the run span. It must be
// called after Player.Start succeeded.
func (s *session) beginRunLocked(ctx context.Context, summary string, attrs ...attribute.KeyValue) {
	s.endSpanLocked(nil)
	runID := s.player.RunID()
	attrs = append(attrs,
		attribute.String("scenario", string(s.scenario)),
		attribute.String("run_id", runID),
		attribute.Int("steps", s.player.Len()),
	)
	// The run outlives the request that started it; keep only the span link.
	runCtx, span := s.opts.tracer.Start(context.WithoutCancel(ctx), "sim.run", trace.WithAttributes(attrs...))
	s.runCtx, s.span = runCtx, span

	s.doneCount = 0
	s.caption = CaptionStarting
	s.appendLogLocked("── Simulation start ──", model.LogInfo)
	s.appendLogLocked(summary, model.LogInfo)

	if s.opts.metrics != nil {
		s.opts.metrics.RunStarted(s.scenario)
	}
	s.opts.log.Info(ctx, "simulation started",
		logging.String("scenario", string(s.scenario)),
		logging.String("run_id", runID),
		logging.String("summary", summary),
	)
}

func (s *session) stepLocked(i int, step model.Step) {
	s.caption = step.Desc
	s.appendLogLocked(step.Log, step.Type)
	if s.span != nil {
		s.span.AddEvent("step", trace.WithAttributes(
			attribute.Int("index", i),
			attribute.String("from", string(step.From)),
			attribute.String("to", string(step.To)),
			attribute.String("label", step.Label),
			attribute.String("type", string(step.Type)),
		))
	}
	if s.opts.metrics != nil {
		s.opts.metrics.StepActivated(s.scenario, step.Type)
	}
}

func (s *session) completeLocked(int) {
	s.doneCount++
}

func (s *session) finishLocked(elapsed time.Duration, outcome string) {
	ms := elapsed.Milliseconds()
	s.appendLogLocked(fmt.Sprintf("── Complete in %dms ──", ms), model.LogInfo)
	s.caption = CaptionComplete

	if s.span != nil {
		s.span.SetAttributes(
			attribute.String("outcome", outcome),
			attribute.Int64("elapsed_ms", ms),
		)
	}
	if s.opts.metrics != nil {
		s.opts.metrics.RunFinished(s.scenario, outcome, elapsed)
	}
	s.opts.log.Info(s.runCtx, "simulation complete",
		logging.String("scenario", string(s.scenario)),
		logging.String("run_id", s.player.RunID()),
		logging.String("outcome", outcome),
		logging.Int("elapsed_ms", int(ms)),
	)
	s.endSpanLocked(nil)
}

func (s *session) resetLocked(ctx context.Context) {
	wasRunning := s.player.Running()
	s.player.Reset()
	if wasRunning {
		s.endSpanLocked(errors.New("run reset"))
	}
	s.clearHintLocked()
	s.log.Clear()
	s.caption = ""
	s.doneCount = 0
	s.opts.log.Info(ctx, "simulation reset",
		logging.String("scenario", string(s.scenario)),
		logging.Bool("cancelled_run", wasRunning),
	)
}

func (s *session) endSpanLocked(err error) {
	if s.span == nil {
		return
	}
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
	s.span = nil
	s.runCtx = context.Background()
}
