package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/sysviz/internal/diagram"
	"github.com/signalsfoundry/sysviz/internal/flow"
	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/internal/stats"
	"github.com/signalsfoundry/sysviz/model"
	"go.opentelemetry.io/otel/attribute"
)

// Caching speed multiplier bounds.
const (
	MinCacheSpeed     = 0.5
	MaxCacheSpeed     = 3.0
	DefaultCacheSpeed = 1.5
)

// CacheSettings is the caching simulator's user-facing configuration.
type CacheSettings struct {
	flow.CacheConfig
	Speed float64 `json:"speed"`
}

// DefaultCacheSettings is the initial caching selection.
func DefaultCacheSettings() CacheSettings {
	return CacheSettings{CacheConfig: flow.DefaultCacheConfig(), Speed: DefaultCacheSpeed}
}

// Normalize validates every field and canonicalises enum aliases.
func (c CacheSettings) Normalize() (CacheSettings, error) {
	var err error
	if c.Operation, err = model.ParseOperation(string(c.Operation)); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ReadStrategy, err = model.ParseReadStrategy(string(c.ReadStrategy)); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.WriteStrategy, err = model.ParseWriteStrategy(string(c.WriteStrategy)); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.CacheState, err = model.ParseCacheState(string(c.CacheState)); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Speed < MinCacheSpeed || c.Speed > MaxCacheSpeed {
		return c, fmt.Errorf("%w: speed %.2f outside [%.1f, %.1f]", ErrInvalidConfig, c.Speed, MinCacheSpeed, MaxCacheSpeed)
	}
	return c, nil
}

// StepDuration is the per-step animation time at this speed.
func (c CacheSettings) StepDuration() time.Duration {
	return diagram.CacheStepDuration(c.Speed)
}

// pause scales an explicit pause by the speed; the default pause is not
// scaled.
func (c CacheSettings) pause(s model.Step) time.Duration {
	if !s.HasPause() {
		return model.DefaultPauseMs * time.Millisecond
	}
	speed := c.Speed
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(math.Round(float64(s.Pause)/speed)) * time.Millisecond
}

// CacheSimulator plays caching strategy flows.
type CacheSimulator struct {
	*session

	cfg   CacheSettings
	flow  model.CacheFlow
	stats stats.CacheStats
}

var _ Simulator = (*CacheSimulator)(nil)

// NewCacheSimulator constructs an idle caching simulator on sched.
func NewCacheSimulator(sched schedule.EventScheduler, opts ...Option) *CacheSimulator {
	o := buildOptions(sched, opts)
	c := &CacheSimulator{
		session: newSession(model.ScenarioCaching, sched, o),
		cfg:     DefaultCacheSettings(),
	}
	c.player = NewPlayer(sched, c.exec, PlayerHooks{
		Step:     c.stepLocked,
		Complete: c.completeLocked,
		Finish:   c.finish,
	}, func(s model.Step) time.Duration { return c.cfg.pause(s) })
	if o.renderer == RendererInternal {
		c.player.SetCompletionTimer(func() time.Duration {
			return diagram.CompletionDelay(c.cfg.StepDuration())
		})
	}
	c.snapshotLocked = c.snapshot
	return c
}

// Settings returns the current configuration.
func (c *CacheSimulator) Settings() CacheSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Apply replaces the configuration. It fails with ErrRunning mid-run.
func (c *CacheSimulator) Apply(ctx context.Context, cfg CacheSettings) error {
	cfg, err := cfg.Normalize()
	if err != nil {
		return err
	}
	var runErr error
	c.exec(func() {
		if c.player.Running() {
			runErr = ErrRunning
			return
		}
		c.cfg = cfg
	})
	if runErr == nil {
		c.opts.log.Debug(ctx, "caching config applied", logging.String("summary", cfg.Summary()), logging.Any("speed", cfg.Speed))
	}
	return runErr
}

// Configure merges a partial JSON document into the current settings.
func (c *CacheSimulator) Configure(ctx context.Context, patch []byte) error {
	next := c.Settings()
	if err := json.Unmarshal(patch, &next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c.Apply(ctx, next)
}

// Run generates the flow for the current configuration and starts playback.
func (c *CacheSimulator) Run(ctx context.Context) bool {
	var started bool
	c.exec(func() {
		f := flow.MakeCacheFlow(c.cfg.CacheConfig)
		if !c.player.Start(f.Steps) {
			return
		}
		c.flow = f
		started = true
		c.beginRunLocked(ctx, c.cfg.Summary(),
			attribute.String("operation", string(c.cfg.Operation)),
			attribute.Float64("speed", c.cfg.Speed),
		)
	})
	return started
}

func (c *CacheSimulator) finish(elapsed time.Duration) {
	c.stats = stats.FoldCache(c.stats, c.flow.IsHit, elapsed.Milliseconds())
	outcome := OutcomeWrite
	if c.flow.IsHit != nil {
		outcome = OutcomeMiss
		if *c.flow.IsHit {
			outcome = OutcomeHit
		}
	}
	if c.opts.metrics != nil {
		c.opts.metrics.SetCacheHitRate(c.stats.HitRate())
	}
	c.finishLocked(elapsed, outcome)
}

// Reset cancels any run and zeroes logs and cumulative stats. The
// configuration is kept.
func (c *CacheSimulator) Reset(ctx context.Context) {
	c.exec(func() {
		c.resetLocked(ctx)
		c.flow = model.CacheFlow{}
		c.stats = stats.CacheStats{}
		if c.opts.metrics != nil {
			c.opts.metrics.SetCacheHitRate(0)
		}
	})
}

// Stats returns the cumulative caching stats.
func (c *CacheSimulator) Stats() stats.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *CacheSimulator) snapshot() Snapshot {
	snap := c.baseSnapshotLocked(int(c.cfg.StepDuration()/time.Millisecond))
	cfg := c.cfg
	snap.Cache = &cfg
	snap.Totals = c.stats
	rate := c.stats.HitRate()
	snap.HitRate = &rate
	return snap
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
