package sim

import (
	"fmt"

	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/model"
)

// Registry holds one simulator per scenario and resolves scenario names
// from transport paths.
type Registry struct {
	cache *CacheSimulator
	lb    *LBSimulator
}

// NewRegistry builds both simulators on a shared scheduler.
func NewRegistry(sched schedule.EventScheduler, opts ...Option) *Registry {
	return &Registry{
		cache: NewCacheSimulator(sched, opts...),
		lb:    NewLBSimulator(sched, opts...),
	}
}

// Get resolves a scenario name or alias.
func (r *Registry) Get(name string) (Simulator, error) {
	sc, err := model.ParseScenario(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	switch sc {
	case model.ScenarioCaching:
		return r.cache, nil
	case model.ScenarioLoadBalancer:
		return r.lb, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}

// Caching returns the caching simulator.
func (r *Registry) Caching() *CacheSimulator { return r.cache }

// LoadBalancer returns the load-balancing simulator.
func (r *Registry) LoadBalancer() *LBSimulator { return r.lb }

// All lists the simulators in scenario order.
func (r *Registry) All() []Simulator {
	return []Simulator{r.cache, r.lb}
}

// Close stops both simulators.
func (r *Registry) Close() {
	r.cache.Close()
	r.lb.Close()
}
