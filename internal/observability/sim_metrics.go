package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/sysviz/model"
)

// SimCollector exposes playback metrics. It satisfies sim.MetricsRecorder.
type SimCollector struct {
	gatherer prometheus.Gatherer

	RunsStarted  *prometheus.CounterVec
	RunsFinished *prometheus.CounterVec
	Steps        *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	CacheHitRate prometheus.Gauge
	ServerRuns   *prometheus.GaugeVec
}

// NewSimCollector registers playback metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	started, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sysviz_runs_started_total",
		Help: "Number of simulation runs started, by scenario.",
	}, []string{"scenario"}), "sysviz_runs_started_total")
	if err != nil {
		return nil, err
	}

	finished, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sysviz_runs_total",
		Help: "Number of simulation runs completed, by scenario and outcome.",
	}, []string{"scenario", "outcome"}), "sysviz_runs_total")
	if err != nil {
		return nil, err
	}

	steps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sysviz_steps_total",
		Help: "Number of steps activated, by scenario and log type.",
	}, []string{"scenario", "type"}), "sysviz_steps_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sysviz_run_duration_seconds",
		Help:    "Simulated wall time of completed runs.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
	}, []string{"scenario"}), "sysviz_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	hitRate, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sysviz_cache_hit_rate_percent",
		Help: "Cumulative caching hit rate since the last reset, in percent.",
	}), "sysviz_cache_hit_rate_percent")
	if err != nil {
		return nil, err
	}

	serverRuns, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sysviz_lb_server_runs",
		Help: "Runs routed to each backend replica since the last reset.",
	}, []string{"server"}), "sysviz_lb_server_runs")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:     gatherer,
		RunsStarted:  started,
		RunsFinished: finished,
		Steps:        steps,
		RunDuration:  duration,
		CacheHitRate: hitRate,
		ServerRuns:   serverRuns,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// RunStarted increments the started counter.
func (c *SimCollector) RunStarted(sc model.Scenario) {
	if c == nil || c.RunsStarted == nil {
		return
	}
	c.RunsStarted.WithLabelValues(string(sc)).Inc()
}

// StepActivated counts one activated step.
func (c *SimCollector) StepActivated(sc model.Scenario, typ model.LogType) {
	if c == nil || c.Steps == nil {
		return
	}
	c.Steps.WithLabelValues(string(sc), string(typ)).Inc()
}

// RunFinished records a completed run and its duration.
func (c *SimCollector) RunFinished(sc model.Scenario, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.RunsFinished != nil {
		c.RunsFinished.WithLabelValues(string(sc), outcome).Inc()
	}
	if c.RunDuration != nil {
		c.RunDuration.WithLabelValues(string(sc)).Observe(elapsed.Seconds())
	}
}

// SetCacheHitRate sets the hit rate gauge, clamped to [0, 100].
func (c *SimCollector) SetCacheHitRate(percent float64) {
	if c == nil || c.CacheHitRate == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	c.CacheHitRate.Set(percent)
}

// SetServerCounts mirrors the cumulative per-replica routing counts.
func (c *SimCollector) SetServerCounts(counts map[model.ServerID]int) {
	if c == nil || c.ServerRuns == nil {
		return
	}
	for _, id := range model.Servers {
		c.ServerRuns.WithLabelValues(string(id)).Set(float64(counts[id]))
	}
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
