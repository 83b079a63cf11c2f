package content

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/sysviz/model"
)

func TestDefaultCatalogIndexes(t *testing.T) {
	c := Default()

	if got := len(c.Concepts()); got != 2 {
		t.Fatalf("concepts = %d, want 2", got)
	}
	if got := len(c.Strategies(KindRead)); got != 3 {
		t.Fatalf("read strategies = %d, want 3", got)
	}
	if got := len(c.Strategies(KindWrite)); got != 3 {
		t.Fatalf("write strategies = %d, want 3", got)
	}
	if got := len(c.Strategies(KindAlgorithm)); got != 4 {
		t.Fatalf("algorithms = %d, want 4", got)
	}
	if got := len(c.Glossary(string(model.ScenarioCaching))); got != 13 {
		t.Fatalf("caching glossary = %d, want 13", got)
	}

	for _, r := range []model.ReadStrategy{model.CacheAside, model.ReadThrough, model.RefreshAhead} {
		if _, err := c.Guide(string(r)); err != nil {
			t.Fatalf("Guide(%s): %v", r, err)
		}
	}
	for _, a := range []model.Algorithm{model.RoundRobin, model.LeastConnections, model.IPHash, model.Weighted} {
		if _, err := c.Strategy(string(a)); err != nil {
			t.Fatalf("Strategy(%s): %v", a, err)
		}
	}
}

func TestLookupsReportNotFound(t *testing.T) {
	c := Default()
	if _, err := c.Concept("queues"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Concept err = %v, want ErrNotFound", err)
	}
	if _, err := c.Term("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Term err = %v, want ErrNotFound", err)
	}
	if _, err := c.Guide("round-robin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Guide err = %v, want ErrNotFound", err)
	}
}

func TestActiveTermsFiltersByStrategy(t *testing.T) {
	c := Default()
	terms := c.ActiveTerms("caching", "write-around", "refresh-ahead")

	ids := make(map[string]bool)
	for _, term := range terms {
		ids[term.ID] = true
	}
	for _, want := range []string{"latency", "fetch", "ttl", "refresh-ahead", "write-around", "cache-hit"} {
		if !ids[want] {
			t.Fatalf("missing term %q in %v", want, ids)
		}
	}
	for _, absent := range []string{"cache-miss", "cache-aside", "write-through"} {
		if ids[absent] {
			t.Fatalf("term %q should be filtered out", absent)
		}
	}
}

func TestTooltipsPreferLongerKeyword(t *testing.T) {
	doc := []byte(`
concepts: [{id: caching}]
log-keywords:
  HIT: short
  CACHE HIT: long
  MISS: miss
`)
	c, err := Load(doc)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	spans := c.Tooltips("MISS then CACHE HIT")
	if len(spans) != 2 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Keyword != "MISS" || spans[0].Start != 0 {
		t.Fatalf("first span = %+v", spans[0])
	}
	if spans[1].Keyword != "CACHE HIT" || spans[1].Tip != "long" {
		t.Fatalf("second span = %+v", spans[1])
	}
}

func TestTooltipsDefaultKeywords(t *testing.T) {
	spans := Default().Tooltips("Cache MISS — FETCH from DB")
	if len(spans) != 2 || spans[0].Keyword != "MISS" || spans[1].Keyword != "FETCH" {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].End-spans[0].Start != len("MISS") {
		t.Fatalf("span length = %d", spans[0].End-spans[0].Start)
	}
}

func TestHintForOnlyCachingOutcomes(t *testing.T) {
	c := Default()

	hit, ok := c.HintFor(model.LogHit)
	if !ok || hit.Term != "cache-hit" || hit.Title != "✅ Cache Hit" {
		t.Fatalf("HintFor(hit) = %+v, %v", hit, ok)
	}
	if _, ok := c.HintFor(model.LogMiss); !ok {
		t.Fatalf("expected a miss hint")
	}
	for _, typ := range []model.LogType{model.LogFetch, model.LogHealth, model.LogRoute, model.LogInfo} {
		if h, ok := c.HintFor(typ); ok {
			t.Fatalf("HintFor(%s) = %+v, want none", typ, h)
		}
	}
}

func TestNodesAndLogTypes(t *testing.T) {
	c := Default()
	nodes := c.Nodes(model.ScenarioLoadBalancer)
	if len(nodes) != 5 || nodes[1].ID != model.NodeLB {
		t.Fatalf("lb nodes = %+v", nodes)
	}
	styles := c.LogTypes(model.ScenarioLoadBalancer)
	if styles[model.LogResponse].Tag != "RESP" {
		t.Fatalf("response style = %+v", styles[model.LogResponse])
	}
	if styles := c.LogTypes(model.ScenarioCaching); styles[model.LogHit].Color != "#059669" {
		t.Fatalf("hit color = %q", styles[model.LogHit].Color)
	}
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"syntax":          "concepts: [",
		"unknown concept": "concepts: [{id: a}]\nstrategies: [{id: s, concept: b}]",
		"duplicate term":  "concepts: [{id: a}]\nglossary: [{id: t, concept: a}, {id: t, concept: a}]",
		"shared log type": "concepts: [{id: a}]\nglossary: [{id: t, concept: a, log-type: hit}, {id: u, concept: a, log-type: hit}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load([]byte(doc)); !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("Load err = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}
