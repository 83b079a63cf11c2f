package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/sysviz/internal/config"
	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/internal/sim"
	"github.com/signalsfoundry/sysviz/model"
	"github.com/signalsfoundry/sysviz/timectrl"
)

type playFlags struct {
	configPath string
	runs       int
	json       bool
	operation  string
	read       string
	write      string
	state      string
	speed      float64
	algorithm  string
	speedMs    int
	down       []string
}

func newPlayCommand() *cobra.Command {
	var f playFlags
	cmd := &cobra.Command{
		Use:   "play <caching|load-balancer>",
		Short: "Replay runs headlessly on an accelerated clock and print the event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return play(cmd.Context(), cmd.OutOrStdout(), args[0], cfg, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	fl.IntVarP(&f.runs, "runs", "n", 1, "number of runs to replay")
	fl.BoolVar(&f.json, "json", false, "print the final snapshot as JSON instead of a summary")
	fl.StringVar(&f.operation, "operation", "", "caching: read or write")
	fl.StringVar(&f.read, "read", "", "caching: read strategy")
	fl.StringVar(&f.write, "write", "", "caching: write strategy")
	fl.StringVar(&f.state, "state", "", "caching: hit or miss")
	fl.Float64Var(&f.speed, "speed", 0, "caching: speed multiplier")
	fl.StringVar(&f.algorithm, "algorithm", "", "load balancing: algorithm")
	fl.IntVar(&f.speedMs, "speed-ms", 0, "load balancing: step duration in milliseconds")
	fl.StringSliceVar(&f.down, "down", nil, "load balancing: servers to mark unhealthy")
	return cmd
}

func (f playFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("operation", &cfg.Caching.Operation, f.operation)
	set("read", &cfg.Caching.ReadStrategy, f.read)
	set("write", &cfg.Caching.WriteStrategy, f.write)
	set("state", &cfg.Caching.CacheState, f.state)
	set("algorithm", &cfg.LoadBalancer.Algorithm, f.algorithm)
	if cmd.Flags().Changed("speed") {
		cfg.Caching.Speed = f.speed
	}
	if cmd.Flags().Changed("speed-ms") {
		cfg.LoadBalancer.SpeedMs = f.speedMs
	}
}

func play(ctx context.Context, out io.Writer, scenario string, cfg *config.Config, f playFlags) error {
	if f.runs < 1 {
		return fmt.Errorf("%w: runs must be at least 1", sim.ErrInvalidConfig)
	}

	start := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := timectrl.NewTimeController(start, time.Millisecond, timectrl.Accelerated)
	sched := schedule.NewEventScheduler(tc)
	tc.SetNextDeadline(sched.Next)
	tc.AddListener(func(time.Time) { sched.RunDue() })

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: io.Discard})
	if strings.EqualFold(cfg.Log.Level, "debug") {
		log = logging.New(logging.Config{Level: "debug", Format: cfg.Log.Format, Output: out})
	}
	registry := sim.NewRegistry(sched, sim.WithLogger(log), sim.WithRenderer(sim.RendererInternal))
	defer registry.Close()
	if err := applyInitialSettings(ctx, cfg, registry); err != nil {
		return err
	}

	sm, err := registry.Get(scenario)
	if err != nil {
		return err
	}
	for _, id := range f.down {
		if _, err := registry.LoadBalancer().ToggleServer(ctx, model.ServerID(strings.TrimSpace(id))); err != nil {
			return err
		}
	}

	var lastID uint64
	for i := 0; i < f.runs; i++ {
		if !sm.Run(ctx) {
			return fmt.Errorf("run %d: %w", i+1, sim.ErrRunning)
		}
		if err := tc.Run(ctx); err != nil {
			return err
		}
		for _, e := range sm.Snapshot().Logs {
			if e.ID <= lastID {
				continue
			}
			lastID = e.ID
			if !f.json {
				fmt.Fprintf(out, "%s  %-8s %s\n", e.Timestamp, e.Type, e.Message)
			}
		}
	}

	snap := sm.Snapshot()
	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSummary(out, snap)
	return nil
}

func printSummary(out io.Writer, snap sim.Snapshot) {
	fmt.Fprintln(out)
	switch snap.Scenario {
	case model.ScenarioCaching:
		rate := "n/a"
		if snap.HitRate != nil {
			rate = fmt.Sprintf("%.0f%%", *snap.HitRate)
		}
		fmt.Fprintf(out, "runs=%d hits=%d misses=%d hit-rate=%s last=%dms\n",
			snap.Totals.Total, snap.Totals.Hits, snap.Totals.Misses, rate, snap.Totals.Ms)
	case model.ScenarioLoadBalancer:
		fmt.Fprintf(out, "runs=%d routed=%d failed=%d last=%dms\n",
			snap.Totals.Total, snap.Totals.Hits, snap.Totals.Misses, snap.Totals.Ms)
		for _, s := range snap.Servers {
			fmt.Fprintf(out, "  %s healthy=%t cpu=%.0f%% mem=%.0f%% latency=%dms conns=%d\n",
				s.ID, s.Healthy, s.CPU, s.Memory, s.LatencyMs, s.ActiveConnections)
		}
	}
}
