package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalsfoundry/sysviz/internal/diagram"
	"github.com/signalsfoundry/sysviz/internal/flow"
	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/internal/stats"
	"github.com/signalsfoundry/sysviz/model"
	"go.opentelemetry.io/otel/attribute"
)

// Load-balancing step duration bounds, in milliseconds.
const (
	MinLBSpeedMs     = 300
	MaxLBSpeedMs     = 1600
	DefaultLBSpeedMs = 800
)

// LBSettings is the load-balancing simulator's user-facing configuration.
type LBSettings struct {
	Algorithm model.Algorithm `json:"algorithm"`
	// SpeedMs is the per-step animation time itself.
	SpeedMs int `json:"speedMs"`
}

// DefaultLBSettings is the initial load-balancing selection.
func DefaultLBSettings() LBSettings {
	return LBSettings{Algorithm: model.RoundRobin, SpeedMs: DefaultLBSpeedMs}
}

// Normalize validates every field and canonicalises algorithm aliases.
func (c LBSettings) Normalize() (LBSettings, error) {
	alg, err := model.ParseAlgorithm(string(c.Algorithm))
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Algorithm = alg
	if c.SpeedMs < MinLBSpeedMs || c.SpeedMs > MaxLBSpeedMs {
		return c, fmt.Errorf("%w: speedMs %d outside [%d, %d]", ErrInvalidConfig, c.SpeedMs, MinLBSpeedMs, MaxLBSpeedMs)
	}
	return c, nil
}

// StepDuration is the per-step animation time.
func (c LBSettings) StepDuration() time.Duration {
	return diagram.LBStepDuration(c.SpeedMs)
}

// LBSimulator plays load-balancing flows across three backend replicas.
type LBSimulator struct {
	*session

	cfg      LBSettings
	health   flow.Health
	rotation int
	chosen   model.ServerID
	stats    stats.LBStats
}

var _ Simulator = (*LBSimulator)(nil)

// NewLBSimulator constructs an idle load-balancing simulator on sched with
// every replica healthy.
func NewLBSimulator(sched schedule.EventScheduler, opts ...Option) *LBSimulator {
	o := buildOptions(sched, opts)
	l := &LBSimulator{
		session: newSession(model.ScenarioLoadBalancer, sched, o),
		cfg:     DefaultLBSettings(),
		health:  flow.AllHealthy(),
		stats:   stats.NewLBStats(),
	}
	// Pauses are never scaled in this scenario.
	l.player = NewPlayer(sched, l.exec, PlayerHooks{
		Step:     l.stepLocked,
		Complete: l.completeLocked,
		Finish:   l.finish,
	}, nil)
	if o.renderer == RendererInternal {
		l.player.SetCompletionTimer(func() time.Duration {
			return diagram.CompletionDelay(l.cfg.StepDuration())
		})
	}
	l.snapshotLocked = l.snapshot
	return l
}

// Settings returns the current configuration.
func (l *LBSimulator) Settings() LBSettings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Apply replaces the configuration. It fails with ErrRunning mid-run.
func (l *LBSimulator) Apply(ctx context.Context, cfg LBSettings) error {
	cfg, err := cfg.Normalize()
	if err != nil {
		return err
	}
	var runErr error
	l.exec(func() {
		if l.player.Running() {
			runErr = ErrRunning
			return
		}
		l.cfg = cfg
	})
	if runErr == nil {
		l.opts.log.Debug(ctx, "load balancer config applied",
			logging.String("algorithm", string(cfg.Algorithm)),
			logging.Int("speed_ms", cfg.SpeedMs),
		)
	}
	return runErr
}

// Configure merges a partial JSON document into the current settings.
func (l *LBSimulator) Configure(ctx context.Context, patch []byte) error {
	next := l.Settings()
	if err := json.Unmarshal(patch, &next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return l.Apply(ctx, next)
}

// ToggleServer flips a replica's health and returns the new value. The
// change applies to the next run's selection.
func (l *LBSimulator) ToggleServer(ctx context.Context, id model.ServerID) (bool, error) {
	id, err := model.ParseServer(string(id))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var healthy bool
	l.exec(func() {
		l.health[id] = !l.health[id]
		healthy = l.health[id]
	})
	l.opts.log.Info(ctx, "server health toggled",
		logging.String("server", string(id)),
		logging.Bool("healthy", healthy),
	)
	return healthy, nil
}

// Health returns a copy of the replica health map.
func (l *LBSimulator) Health() flow.Health {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health.Clone()
}

// Run selects a target for the current configuration and starts playback.
// The rotation counter advances at selection time.
func (l *LBSimulator) Run(ctx context.Context) bool {
	var started bool
	l.exec(func() {
		if l.player.Running() {
			return
		}
		f := flow.MakeLBFlow(l.cfg.Algorithm, l.health.Clone(), l.rotation, flow.Counts(l.stats.ServerCounts))
		if !l.player.Start(f.Steps) {
			return
		}
		l.rotation = f.NextRotation
		l.chosen = f.Chosen
		started = true
		l.beginRunLocked(ctx, flow.LBSummary(l.cfg.Algorithm),
			attribute.String("algorithm", string(l.cfg.Algorithm)),
			attribute.String("chosen", string(f.Chosen)),
		)
	})
	return started
}

func (l *LBSimulator) finish(elapsed time.Duration) {
	l.stats = stats.FoldLB(l.stats, l.chosen, elapsed.Milliseconds())
	outcome := OutcomeRouted
	if l.chosen == "" {
		outcome = OutcomeFailed
	}
	if l.opts.metrics != nil {
		l.opts.metrics.SetServerCounts(l.stats.ServerCounts)
	}
	l.finishLocked(elapsed, outcome)
}

// Reset cancels any run and zeroes logs, stats and the rotation counter.
// Algorithm, speed and replica health are kept.
func (l *LBSimulator) Reset(ctx context.Context) {
	l.exec(func() {
		l.resetLocked(ctx)
		l.stats = stats.NewLBStats()
		l.rotation = 0
		l.chosen = ""
		if l.opts.metrics != nil {
			l.opts.metrics.SetServerCounts(l.stats.ServerCounts)
		}
	})
}

// Stats returns a copy of the cumulative load-balancing stats.
func (l *LBSimulator) Stats() stats.LBStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats.Clone()
}

// Rotation is the counter carried into the next selection.
func (l *LBSimulator) Rotation() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotation
}

func (l *LBSimulator) snapshot() Snapshot {
	snap := l.baseSnapshotLocked(l.cfg.SpeedMs)
	cfg := l.cfg
	snap.LB = &cfg
	lbStats := l.stats.Clone()
	summary := lbStats.Summary()
	snap.LBStats = &lbStats
	snap.LBSummary = &summary
	snap.Totals = stats.CacheStats{
		Hits:   lbStats.Routed(),
		Misses: lbStats.Failed,
		Total:  lbStats.Total,
		Ms:     lbStats.Ms,
	}
	snap.Health = l.health.Clone()
	snap.Servers = stats.ServerView(lbStats, snap.Health)
	return snap
}
