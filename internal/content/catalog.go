// Package content holds the static learning material shown next to the
// simulators: concept cards, strategy descriptions, glossary terms and the
// keyword tooltips applied to log messages.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/signalsfoundry/sysviz/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrNotFound is returned when a catalog lookup names an unknown id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCatalog is returned by Load for malformed documents.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// StrategyKind groups strategies the way the configuration panel does.
type StrategyKind string

const (
	KindRead      StrategyKind = "read"
	KindWrite     StrategyKind = "write"
	KindAlgorithm StrategyKind = "algorithm"
)

type Concept struct {
	ID       string `yaml:"id" json:"id"`
	Label    string `yaml:"label" json:"label"`
	Icon     string `yaml:"icon" json:"icon"`
	Color    string `yaml:"color" json:"color"`
	Status   string `yaml:"status" json:"status"`
	Tagline  string `yaml:"tagline" json:"tagline"`
	What     string `yaml:"what" json:"what"`
	Overview string `yaml:"overview" json:"overview"`
	Stat     string `yaml:"stat" json:"stat"`
}

type Strategy struct {
	ID      string       `yaml:"id" json:"id"`
	Concept string       `yaml:"concept" json:"concept"`
	Kind    StrategyKind `yaml:"kind" json:"kind"`
	Label   string       `yaml:"label" json:"label"`
	Tagline string       `yaml:"tagline" json:"tagline"`
	Pros    []string     `yaml:"pros" json:"pros"`
	When    string       `yaml:"when" json:"when"`
}

// Term is a glossary entry. Terms carrying a LogType are the ones a hint
// can be raised for; HintTitle and HintText are the hint body.
type Term struct {
	ID        string        `yaml:"id" json:"id"`
	Concept   string        `yaml:"concept" json:"concept"`
	Title     string        `yaml:"title" json:"title"`
	Short     string        `yaml:"short" json:"short"`
	Context   string        `yaml:"context" json:"context"`
	Color     string        `yaml:"color" json:"color"`
	LogType   model.LogType `yaml:"log-type" json:"logType,omitempty"`
	Related   []string      `yaml:"related" json:"relatedStrategies,omitempty"`
	HintTitle string        `yaml:"hint-title" json:"-"`
	HintText  string        `yaml:"hint-text" json:"-"`
}

// Guide is the three-line explainer of a caching strategy.
type Guide struct {
	Headline string `yaml:"headline" json:"headline"`
	Flow     string `yaml:"flow" json:"flow"`
	Note     string `yaml:"note" json:"note"`
}

type NodeLabel struct {
	ID    model.NodeID `yaml:"id" json:"id"`
	Label string       `yaml:"label" json:"label"`
	Sub   string       `yaml:"sub" json:"sub"`
	Color string       `yaml:"color" json:"color"`
}

// LogTypeStyle is how a log type is rendered. Tag and Tip are only set for
// scenarios whose log view shows a badge.
type LogTypeStyle struct {
	Color string `yaml:"color" json:"color"`
	Tag   string `yaml:"tag" json:"tag,omitempty"`
	Tip   string `yaml:"tip" json:"tip,omitempty"`
}

// Span marks a tooltip keyword inside a log message. Start and End are byte
// offsets.
type Span struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Keyword string `json:"keyword"`
	Tip     string `json:"tip"`
}

type document struct {
	Concepts    []Concept                                         `yaml:"concepts"`
	Strategies  []Strategy                                        `yaml:"strategies"`
	Glossary    []Term                                            `yaml:"glossary"`
	Guides      map[string]Guide                                  `yaml:"guides"`
	LogKeywords map[string]string                                 `yaml:"log-keywords"`
	LogTypes    map[model.Scenario]map[model.LogType]LogTypeStyle `yaml:"log-types"`
	Nodes       map[model.Scenario][]NodeLabel                    `yaml:"nodes"`
}

// Catalog is an immutable, indexed view of a content document. It is safe
// for concurrent use.
type Catalog struct {
	doc        document
	concepts   map[string]Concept
	strategies map[string]Strategy
	terms      map[string]Term
	byLogType  map[model.LogType]Term
	// keywords is sorted longest first so that overlapping keywords resolve
	// to the longer match.
	keywords []string
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Load(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("content: embedded catalog: %v", err))
	}
	return c
}

// Load parses a YAML content document.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	c := &Catalog{
		doc:        doc,
		concepts:   make(map[string]Concept, len(doc.Concepts)),
		strategies: make(map[string]Strategy, len(doc.Strategies)),
		terms:      make(map[string]Term, len(doc.Glossary)),
		byLogType:  make(map[model.LogType]Term),
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) index() error {
	for _, cc := range c.doc.Concepts {
		if cc.ID == "" {
			return fmt.Errorf("%w: concept without id", ErrInvalidCatalog)
		}
		if _, dup := c.concepts[cc.ID]; dup {
			return fmt.Errorf("%w: duplicate concept %q", ErrInvalidCatalog, cc.ID)
		}
		c.concepts[cc.ID] = cc
	}
	for _, s := range c.doc.Strategies {
		if _, ok := c.concepts[s.Concept]; !ok {
			return fmt.Errorf("%w: strategy %q references unknown concept %q", ErrInvalidCatalog, s.ID, s.Concept)
		}
		if _, dup := c.strategies[s.ID]; dup {
			return fmt.Errorf("%w: duplicate strategy %q", ErrInvalidCatalog, s.ID)
		}
		c.strategies[s.ID] = s
	}
	for _, t := range c.doc.Glossary {
		if _, ok := c.concepts[t.Concept]; !ok {
			return fmt.Errorf("%w: term %q references unknown concept %q", ErrInvalidCatalog, t.ID, t.Concept)
		}
		if _, dup := c.terms[t.ID]; dup {
			return fmt.Errorf("%w: duplicate term %q", ErrInvalidCatalog, t.ID)
		}
		c.terms[t.ID] = t
		if t.LogType == "" {
			continue
		}
		if _, dup := c.byLogType[t.LogType]; dup {
			return fmt.Errorf("%w: log type %q bound to two terms", ErrInvalidCatalog, t.LogType)
		}
		c.byLogType[t.LogType] = t
	}
	for kw := range c.doc.LogKeywords {
		c.keywords = append(c.keywords, kw)
	}
	sort.Slice(c.keywords, func(i, j int) bool {
		if len(c.keywords[i]) != len(c.keywords[j]) {
			return len(c.keywords[i]) > len(c.keywords[j])
		}
		return c.keywords[i] < c.keywords[j]
	})
	return nil
}

// Concepts lists the concept cards in document order.
func (c *Catalog) Concepts() []Concept {
	return append([]Concept(nil), c.doc.Concepts...)
}

func (c *Catalog) Concept(id string) (Concept, error) {
	cc, ok := c.concepts[id]
	if !ok {
		return Concept{}, fmt.Errorf("concept %q: %w", id, ErrNotFound)
	}
	return cc, nil
}

// Strategies lists the strategies of one kind in document order. An empty
// kind returns every strategy.
func (c *Catalog) Strategies(kind StrategyKind) []Strategy {
	var out []Strategy
	for _, s := range c.doc.Strategies {
		if kind == "" || s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (c *Catalog) Strategy(id string) (Strategy, error) {
	s, ok := c.strategies[id]
	if !ok {
		return Strategy{}, fmt.Errorf("strategy %q: %w", id, ErrNotFound)
	}
	return s, nil
}

// Glossary lists the terms of a concept in document order.
func (c *Catalog) Glossary(concept string) []Term {
	var out []Term
	for _, t := range c.doc.Glossary {
		if t.Concept == concept {
			out = append(out, t)
		}
	}
	return out
}

func (c *Catalog) Term(id string) (Term, error) {
	t, ok := c.terms[id]
	if !ok {
		return Term{}, fmt.Errorf("term %q: %w", id, ErrNotFound)
	}
	return t, nil
}

// ActiveTerms narrows a concept's glossary to the terms relevant to the
// selected strategies. Terms with no related strategies always apply.
func (c *Catalog) ActiveTerms(concept string, active ...string) []Term {
	want := make(map[string]struct{}, len(active))
	for _, a := range active {
		want[a] = struct{}{}
	}
	var out []Term
	for _, t := range c.Glossary(concept) {
		if len(t.Related) == 0 {
			out = append(out, t)
			continue
		}
		for _, r := range t.Related {
			if _, ok := want[r]; ok {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func (c *Catalog) Guide(strategy string) (Guide, error) {
	g, ok := c.doc.Guides[strategy]
	if !ok {
		return Guide{}, fmt.Errorf("guide %q: %w", strategy, ErrNotFound)
	}
	return g, nil
}

// Tooltips finds the keyword spans of a log message. Each keyword matches
// at its first occurrence only; a keyword overlapping a longer one already
// placed is dropped. Spans are returned in message order.
func (c *Catalog) Tooltips(msg string) []Span {
	var spans []Span
	for _, kw := range c.keywords {
		i := strings.Index(msg, kw)
		if i < 0 {
			continue
		}
		end := i + len(kw)
		overlaps := false
		for _, s := range spans {
			if i < s.End && end > s.Start {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		spans = append(spans, Span{Start: i, End: end, Keyword: kw, Tip: c.doc.LogKeywords[kw]})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// Nodes returns the node labels of a scenario's diagram.
func (c *Catalog) Nodes(sc model.Scenario) []NodeLabel {
	return append([]NodeLabel(nil), c.doc.Nodes[sc]...)
}

// LogTypes returns the log type styling of a scenario.
func (c *Catalog) LogTypes(sc model.Scenario) map[model.LogType]LogTypeStyle {
	out := make(map[model.LogType]LogTypeStyle, len(c.doc.LogTypes[sc]))
	for k, v := range c.doc.LogTypes[sc] {
		out[k] = v
	}
	return out
}

// HintFor returns the hint raised the first time a log entry of the given
// type appears. Only terms carrying hint text produce one.
func (c *Catalog) HintFor(typ model.LogType) (model.Hint, bool) {
	t, ok := c.byLogType[typ]
	if !ok || t.HintText == "" {
		return model.Hint{}, false
	}
	return model.Hint{Term: t.ID, Title: t.HintTitle, Text: t.HintText}, true
}
