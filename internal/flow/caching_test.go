package flow

import (
	"reflect"
	"testing"

	"github.com/signalsfoundry/sysviz/model"
)

func allCacheConfigs() []CacheConfig {
	var out []CacheConfig
	for _, rs := range []model.ReadStrategy{model.CacheAside, model.ReadThrough, model.RefreshAhead} {
		for _, cs := range []model.CacheState{model.CacheHit, model.CacheMiss} {
			out = append(out, CacheConfig{Operation: model.OpRead, ReadStrategy: rs, CacheState: cs})
		}
	}
	for _, ws := range []model.WriteStrategy{model.WriteThrough, model.WriteBehind, model.WriteAround} {
		out = append(out, CacheConfig{Operation: model.OpWrite, WriteStrategy: ws})
	}
	return out
}

func TestMakeCacheFlowStepCounts(t *testing.T) {
	cases := []struct {
		cfg   CacheConfig
		steps int
		hit   *bool
	}{
		{CacheConfig{Operation: model.OpRead, ReadStrategy: model.CacheAside, CacheState: model.CacheHit}, 4, boolPtr(true)},
		{CacheConfig{Operation: model.OpRead, ReadStrategy: model.CacheAside, CacheState: model.CacheMiss}, 7, boolPtr(false)},
		{CacheConfig{Operation: model.OpRead, ReadStrategy: model.ReadThrough, CacheState: model.CacheHit}, 4, boolPtr(true)},
		{CacheConfig{Operation: model.OpRead, ReadStrategy: model.ReadThrough, CacheState: model.CacheMiss}, 6, boolPtr(false)},
		{CacheConfig{Operation: model.OpRead, ReadStrategy: model.RefreshAhead, CacheState: model.CacheMiss}, 6, boolPtr(true)},
		{CacheConfig{Operation: model.OpWrite, WriteStrategy: model.WriteThrough}, 6, nil},
		{CacheConfig{Operation: model.OpWrite, WriteStrategy: model.WriteBehind}, 5, nil},
		{CacheConfig{Operation: model.OpWrite, WriteStrategy: model.WriteAround}, 4, nil},
	}

	for _, tc := range cases {
		f := MakeCacheFlow(tc.cfg)
		if len(f.Steps) != tc.steps {
			t.Fatalf("%s: got %d steps, want %d", tc.cfg.Summary(), len(f.Steps), tc.steps)
		}
		switch {
		case tc.hit == nil && f.IsHit != nil:
			t.Fatalf("%s: write flow classified as hit=%v", tc.cfg.Summary(), *f.IsHit)
		case tc.hit != nil && (f.IsHit == nil || *f.IsHit != *tc.hit):
			t.Fatalf("%s: IsHit = %v, want %v", tc.cfg.Summary(), f.IsHit, *tc.hit)
		}
	}
}

func TestMakeCacheFlowCacheAsideMiss(t *testing.T) {
	f := MakeCacheFlow(CacheConfig{Operation: model.OpRead, ReadStrategy: model.CacheAside, CacheState: model.CacheMiss})

	miss := f.Steps[2]
	if miss.From != model.NodeCache || miss.To != model.NodeServer {
		t.Fatalf("step 3 = %s→%s, want cache→server", miss.From, miss.To)
	}
	if miss.Pause != 300 {
		t.Fatalf("step 3 pause = %d, want 300", miss.Pause)
	}
	if miss.Type != model.LogMiss {
		t.Fatalf("step 3 type = %s, want miss", miss.Type)
	}
	for i, s := range f.Steps {
		if want := "s" + string(rune('1'+i)); s.ID != want {
			t.Fatalf("step %d id = %q, want %q", i, s.ID, want)
		}
	}
}

func TestMakeCacheFlowRoundTrip(t *testing.T) {
	for _, cfg := range allCacheConfigs() {
		f := MakeCacheFlow(cfg)
		if len(f.Steps) == 0 {
			t.Fatalf("%s: empty flow", cfg.Summary())
		}
		if f.Steps[0].From != model.NodeApp {
			t.Fatalf("%s: first step starts at %s, want app", cfg.Summary(), f.Steps[0].From)
		}
		// Background steps trail the user-visible response for these two.
		if cfg.Operation == model.OpWrite && cfg.WriteStrategy == model.WriteBehind {
			continue
		}
		if cfg.Operation == model.OpRead && cfg.ReadStrategy == model.RefreshAhead {
			continue
		}
		if last := f.Steps[len(f.Steps)-1]; last.To != model.NodeApp {
			t.Fatalf("%s: last step ends at %s, want app", cfg.Summary(), last.To)
		}
	}
}

func TestMakeCacheFlowWriteBehindAcksBeforeFlush(t *testing.T) {
	f := MakeCacheFlow(CacheConfig{Operation: model.OpWrite, WriteStrategy: model.WriteBehind})

	ack, flush := -1, -1
	for i, s := range f.Steps {
		if s.To == model.NodeApp && ack < 0 {
			ack = i
		}
		if s.From == model.NodeCache && s.To == model.NodeDB && flush < 0 {
			flush = i
		}
	}
	if ack < 0 || flush < 0 {
		t.Fatalf("missing ack (%d) or flush (%d) step", ack, flush)
	}
	if ack >= flush {
		t.Fatalf("ack at %d must precede db flush at %d", ack, flush)
	}
	if f.Steps[ack].Pause != 500 {
		t.Fatalf("fast ack pause = %d, want 500", f.Steps[ack].Pause)
	}
}

func TestMakeCacheFlowDeterministic(t *testing.T) {
	for _, cfg := range allCacheConfigs() {
		a, b := MakeCacheFlow(cfg), MakeCacheFlow(cfg)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: flows differ between calls", cfg.Summary())
		}
	}
}

func TestCacheConfigSummary(t *testing.T) {
	cases := map[string]CacheConfig{
		"READ · cache-aside · MISS": {Operation: model.OpRead, ReadStrategy: model.CacheAside, CacheState: model.CacheMiss},
		"READ · refresh-ahead":      {Operation: model.OpRead, ReadStrategy: model.RefreshAhead, CacheState: model.CacheHit},
		"WRITE · write-around":      {Operation: model.OpWrite, WriteStrategy: model.WriteAround},
	}
	for want, cfg := range cases {
		if got := cfg.Summary(); got != want {
			t.Fatalf("Summary() = %q, want %q", got, want)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
