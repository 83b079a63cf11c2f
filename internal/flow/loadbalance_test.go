package flow

import (
	"reflect"
	"testing"

	"github.com/signalsfoundry/sysviz/model"
)

func TestPickServerRoundRobinOrder(t *testing.T) {
	want := []model.ServerID{"s1", "s2", "s3", "s1", "s2", "s3", "s1"}
	rotation := 0
	counts := Counts{}
	for i, w := range want {
		var got model.ServerID
		got, rotation = PickServer(model.RoundRobin, AllHealthy(), rotation, counts)
		if got != w {
			t.Fatalf("run %d: got %s, want %s", i, got, w)
		}
		counts[got]++
	}
	if rotation != len(want) {
		t.Fatalf("rotation = %d, want %d", rotation, len(want))
	}
}

func TestPickServerRoundRobinDistribution(t *testing.T) {
	const runs = 31
	rotation := 0
	counts := Counts{}
	for i := 0; i < runs; i++ {
		var s model.ServerID
		s, rotation = PickServer(model.RoundRobin, AllHealthy(), rotation, counts)
		counts[s]++
	}
	for _, s := range model.Servers {
		if d := counts[s] - runs/3; d < -1 || d > 1 {
			t.Fatalf("%s routed %d times, want %d±1", s, counts[s], runs/3)
		}
	}
}

func TestPickServerLeastConnections(t *testing.T) {
	got, next := PickServer(model.LeastConnections, AllHealthy(), 7, Counts{"s1": 2, "s2": 0, "s3": 1})
	if got != model.ServerS2 {
		t.Fatalf("got %s, want s2", got)
	}
	if next != 7 {
		t.Fatalf("least-conn must not advance rotation, got %d", next)
	}

	tied, _ := PickServer(model.LeastConnections, AllHealthy(), 0, Counts{"s1": 1, "s2": 1, "s3": 1})
	if tied != model.ServerS1 {
		t.Fatalf("tie broken to %s, want s1", tied)
	}

	health := AllHealthy()
	health[model.ServerS2] = false
	skip, _ := PickServer(model.LeastConnections, health, 0, Counts{"s1": 2, "s2": 0, "s3": 1})
	if skip != model.ServerS3 {
		t.Fatalf("unhealthy minimum picked %s, want s3", skip)
	}
}

func TestPickServerIPHashMatchesRotation(t *testing.T) {
	health := AllHealthy()
	health[model.ServerS1] = false
	for r := 0; r < 6; r++ {
		a, an := PickServer(model.IPHash, health, r, nil)
		b, bn := PickServer(model.RoundRobin, health, r, nil)
		if a != b || an != bn {
			t.Fatalf("rotation %d: ip-hash (%s,%d) != round-robin (%s,%d)", r, a, an, b, bn)
		}
	}
}

func TestPickServerWeightedPattern(t *testing.T) {
	want := []model.ServerID{"s1", "s1", "s2", "s1", "s1", "s3", "s2", "s1", "s1"}
	for r, w := range want {
		got, next := PickServer(model.Weighted, AllHealthy(), r, nil)
		if got != w {
			t.Fatalf("slot %d: got %s, want %s", r, got, w)
		}
		if next != r+1 {
			t.Fatalf("slot %d: next rotation %d", r, next)
		}
	}

	health := AllHealthy()
	health[model.ServerS3] = false
	health[model.ServerS1] = false
	if got, _ := PickServer(model.Weighted, health, 5, nil); got != model.ServerS2 {
		t.Fatalf("fallback picked %s, want first healthy s2", got)
	}
}

func TestMakeLBFlowAllDown(t *testing.T) {
	health := Health{}
	f := MakeLBFlow(model.RoundRobin, health, 4, Counts{})

	if len(f.Steps) != 5 {
		t.Fatalf("got %d steps, want 5", len(f.Steps))
	}
	if !f.Failed() {
		t.Fatalf("chosen = %q, want failure", f.Chosen)
	}
	if f.NextRotation != 4 {
		t.Fatalf("rotation advanced to %d on failure", f.NextRotation)
	}
	last := f.Steps[len(f.Steps)-1]
	if last.To != model.NodeClient || last.Type != model.LogError || last.Label != "503 ERROR" {
		t.Fatalf("last step = %+v, want 503 to client", last)
	}
	if f.Steps[1].Log != "LB → S1: health check FAILED ✗" {
		t.Fatalf("unexpected health check log %q", f.Steps[1].Log)
	}
}

func TestMakeLBFlowSkipsUnhealthy(t *testing.T) {
	health := AllHealthy()
	health[model.ServerS1] = false
	f := MakeLBFlow(model.RoundRobin, health, 0, Counts{})

	if f.Chosen != model.ServerS2 {
		t.Fatalf("chosen = %s, want s2", f.Chosen)
	}
	if len(f.Steps) != 5 {
		t.Fatalf("got %d steps, want 5", len(f.Steps))
	}
	skip := f.Steps[1]
	if skip.To != model.NodeS1 || skip.Pause != 200 {
		t.Fatalf("skip step = %+v", skip)
	}
	route := f.Steps[2]
	if route.To != model.NodeS2 || route.Label != "ROUND-ROBIN" || route.Type != model.LogRoute {
		t.Fatalf("route step = %+v", route)
	}
	if f.Steps[3].Log != "Server 2 → LB: 200 OK, request processed" {
		t.Fatalf("processed log = %q", f.Steps[3].Log)
	}
}

func TestMakeLBFlowDeterministic(t *testing.T) {
	for _, alg := range []model.Algorithm{model.RoundRobin, model.LeastConnections, model.IPHash, model.Weighted} {
		counts := Counts{"s1": 3, "s2": 1, "s3": 2}
		a := MakeLBFlow(alg, AllHealthy(), 5, counts)
		b := MakeLBFlow(alg, AllHealthy(), 5, counts)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: flows differ", alg)
		}
	}
}
