package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/sysviz/internal/config"
	"github.com/signalsfoundry/sysviz/internal/sim"
	"github.com/signalsfoundry/sysviz/model"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPlayCacheAsideMiss(t *testing.T) {
	out, err := runCLI(t, "play", "caching", "--state", "miss")
	if err != nil {
		t.Fatalf("play: %v\n%s", err, out)
	}
	if !strings.Contains(out, "── Complete in 6220ms ──") {
		t.Fatalf("missing completion line:\n%s", out)
	}
	if !strings.Contains(out, "runs=1 hits=0 misses=1") {
		t.Fatalf("missing summary:\n%s", out)
	}
	if !strings.HasPrefix(out, "00:00.") {
		t.Fatalf("log lines should carry virtual timestamps:\n%s", out)
	}
}

func TestPlayRepeatsRuns(t *testing.T) {
	out, err := runCLI(t, "play", "cache", "--runs", "3", "--state", "hit", "--speed", "3")
	if err != nil {
		t.Fatalf("play: %v\n%s", err, out)
	}
	if got := strings.Count(out, "── Simulation start ──"); got != 3 {
		t.Fatalf("start markers = %d, want 3\n%s", got, out)
	}
	if !strings.Contains(out, "runs=3 hits=3 misses=0 hit-rate=100%") {
		t.Fatalf("missing summary:\n%s", out)
	}
}

func TestPlayLoadBalancerAllDown(t *testing.T) {
	out, err := runCLI(t, "play", "lb", "--json", "--down", "s1,s2,s3")
	if err != nil {
		t.Fatalf("play: %v\n%s", err, out)
	}
	var snap sim.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if snap.Scenario != model.ScenarioLoadBalancer || snap.Totals.Misses != 1 || snap.Totals.Hits != 0 {
		t.Fatalf("snapshot totals = %+v", snap.Totals)
	}
	if snap.Running {
		t.Fatalf("run did not finish")
	}
}

func TestPlayRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"play", "queue"},
		{"play", "caching", "--read", "bogus"},
		{"play", "lb", "--down", "s7"},
		{"play", "lb", "--runs", "0"},
		{"play"},
	}
	for _, args := range cases {
		if _, err := runCLI(t, args...); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestServeStartsAndStops(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.GRPC.Addr = "127.0.0.1:0"
	cfg.Hints.DBPath = ":memory:"
	cfg.Log.Level = "error"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := serve(ctx, cfg); err != nil {
		t.Fatalf("serve: %v", err)
	}
}
