// Package httpapi exposes the simulators, the learning content and the
// hint flags over REST, and streams snapshots to renderers over websocket.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/sysviz/internal/content"
	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/internal/observability"
	"github.com/signalsfoundry/sysviz/internal/sim"
	"github.com/signalsfoundry/sysviz/model"
)

const maxConfigBody = 64 << 10

// HintStore is the subset of the hint tracker the API needs.
type HintStore interface {
	Seen(ctx context.Context, term string) bool
	MarkSeen(ctx context.Context, term string) error
}

type Option func(*Server)

func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithMetrics(m *observability.TransportCollector) Option {
	return func(s *Server) { s.metrics = m }
}

func WithHintStore(h HintStore) Option {
	return func(s *Server) { s.hints = h }
}

// WithAllowedOrigins restricts websocket upgrades to the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// Server holds the gin engine and one websocket hub per simulator.
type Server struct {
	registry *sim.Registry
	catalog  *content.Catalog
	hints    HintStore
	log      logging.Logger
	metrics  *observability.TransportCollector
	origins  []string

	engine *gin.Engine
	hubs   map[model.Scenario]*hub
}

func New(registry *sim.Registry, catalog *content.Catalog, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		catalog:  catalog,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hubs = make(map[model.Scenario]*hub)
	for _, sm := range registry.All() {
		s.hubs[sm.Scenario()] = newHub(sm, s.origins, s.log, s.metrics)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Close disconnects every websocket client.
func (s *Server) Close() {
	for _, h := range s.hubs {
		h.close()
	}
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.observe())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/ws/:scenario", s.stream)

	api := r.Group("/api")
	{
		api.GET("/sims", s.listSims)
		api.GET("/sims/:scenario", s.getSim)
		api.PUT("/sims/:scenario/config", s.configure)
		api.POST("/sims/:scenario/run", s.run)
		api.POST("/sims/:scenario/reset", s.reset)
		api.POST("/sims/:scenario/complete", s.complete)
		api.POST("/sims/:scenario/servers/:id/toggle", s.toggle)

		api.GET("/concepts", s.listConcepts)
		api.GET("/concepts/:id", s.getConcept)
		api.GET("/strategies", s.listStrategies)
		api.GET("/glossary", s.glossary)
		api.GET("/guides/:strategy", s.guide)
		api.GET("/tooltips", s.tooltips)
		api.GET("/nodes/:scenario", s.nodes)

		api.GET("/hints/:term", s.getHint)
		api.POST("/hints/:term", s.markHint)
	}
	return r
}

func (s *Server) simulator(c *gin.Context) (sim.Simulator, bool) {
	sm, err := s.registry.Get(c.Param("scenario"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return sm, true
}

func (s *Server) listSims(c *gin.Context) {
	out := make([]sim.Snapshot, 0, 2)
	for _, sm := range s.registry.All() {
		out = append(out, sm.Snapshot())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getSim(c *gin.Context) {
	sm, ok := s.simulator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sm.Snapshot())
}

func (s *Server) configure(c *gin.Context) {
	sm, ok := s.simulator(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigBody))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := sm.Configure(c.Request.Context(), body); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sm.Snapshot())
}

type acceptedResponse struct {
	Accepted bool         `json:"accepted"`
	Snapshot sim.Snapshot `json:"snapshot"`
}

func (s *Server) run(c *gin.Context) {
	sm, ok := s.simulator(c)
	if !ok {
		return
	}
	accepted := sm.Run(c.Request.Context())
	c.JSON(http.StatusOK, acceptedResponse{Accepted: accepted, Snapshot: sm.Snapshot()})
}

func (s *Server) reset(c *gin.Context) {
	sm, ok := s.simulator(c)
	if !ok {
		return
	}
	sm.Reset(c.Request.Context())
	c.JSON(http.StatusOK, sm.Snapshot())
}

func (s *Server) complete(c *gin.Context) {
	sm, ok := s.simulator(c)
	if !ok {
		return
	}
	accepted := sm.StepComplete(c.Request.Context())
	c.JSON(http.StatusOK, acceptedResponse{Accepted: accepted, Snapshot: sm.Snapshot()})
}

func (s *Server) toggle(c *gin.Context) {
	sm, ok := s.simulator(c)
	if !ok {
		return
	}
	lb, isLB := sm.(*sim.LBSimulator)
	if !isLB {
		abortWithError(c, sim.ErrUnknownScenario)
		return
	}
	healthy, err := lb.ToggleServer(c.Request.Context(), model.ServerID(c.Param("id")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"server": c.Param("id"), "healthy": healthy})
}

func (s *Server) stream(c *gin.Context) {
	sc, err := model.ParseScenario(c.Param("scenario"))
	if err != nil {
		abortWithError(c, sim.ErrUnknownScenario)
		return
	}
	s.hubs[sc].serve(c.Writer, c.Request)
}

func (s *Server) listConcepts(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Concepts())
}

func (s *Server) getConcept(c *gin.Context) {
	cc, err := s.catalog.Concept(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cc)
}

func (s *Server) listStrategies(c *gin.Context) {
	out := s.catalog.Strategies(content.StrategyKind(c.Query("kind")))
	if out == nil {
		out = []content.Strategy{}
	}
	c.JSON(http.StatusOK, out)
}

// glossary serves ?concept=caching&active=cache-aside,write-through. Without
// active, the whole concept glossary is returned.
func (s *Server) glossary(c *gin.Context) {
	concept := c.DefaultQuery("concept", string(model.ScenarioCaching))
	var terms []content.Term
	if active := c.Query("active"); active != "" {
		terms = s.catalog.ActiveTerms(concept, strings.Split(active, ",")...)
	} else {
		terms = s.catalog.Glossary(concept)
	}
	if terms == nil {
		terms = []content.Term{}
	}
	c.JSON(http.StatusOK, terms)
}

func (s *Server) guide(c *gin.Context) {
	g, err := s.catalog.Guide(c.Param("strategy"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) tooltips(c *gin.Context) {
	spans := s.catalog.Tooltips(c.Query("msg"))
	if spans == nil {
		spans = []content.Span{}
	}
	c.JSON(http.StatusOK, spans)
}

func (s *Server) nodes(c *gin.Context) {
	sc, err := model.ParseScenario(c.Param("scenario"))
	if err != nil {
		abortWithError(c, sim.ErrUnknownScenario)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nodes":    s.catalog.Nodes(sc),
		"logTypes": s.catalog.LogTypes(sc),
	})
}

func (s *Server) getHint(c *gin.Context) {
	term, err := s.catalog.Term(c.Param("term"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	seen := false
	if s.hints != nil {
		seen = s.hints.Seen(c.Request.Context(), term.ID)
	}
	c.JSON(http.StatusOK, gin.H{"term": term.ID, "seen": seen})
}

func (s *Server) markHint(c *gin.Context) {
	if s.hints == nil {
		abortWithError(c, errHintsDisabled)
		return
	}
	if err := s.hints.MarkSeen(c.Request.Context(), c.Param("term")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"term": c.Param("term"), "seen": true})
}
