package flow

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/sysviz/model"
)

// Health maps each target to whether it currently accepts traffic.
type Health map[model.ServerID]bool

// AllHealthy returns a health map with every target up.
func AllHealthy() Health {
	return Health{model.ServerS1: true, model.ServerS2: true, model.ServerS3: true}
}

// Clone returns an independent copy.
func (h Health) Clone() Health {
	out := make(Health, len(model.Servers))
	for _, s := range model.Servers {
		out[s] = h[s]
	}
	return out
}

// Healthy returns the healthy targets in enumeration order.
func (h Health) Healthy() []model.ServerID {
	out := make([]model.ServerID, 0, len(model.Servers))
	for _, s := range model.Servers {
		if h[s] {
			out = append(out, s)
		}
	}
	return out
}

// Counts holds cumulative routed requests per target.
type Counts map[model.ServerID]int

// weightedPattern approximates a 50/30/20 split over eight slots.
var weightedPattern = [...]model.ServerID{
	model.ServerS1, model.ServerS1, model.ServerS2, model.ServerS1,
	model.ServerS1, model.ServerS3, model.ServerS2, model.ServerS1,
}

// PickServer applies the selection policy. It returns "" when no target is
// healthy, in which case the rotation counter is returned unchanged.
func PickServer(alg model.Algorithm, health Health, rotation int, counts Counts) (model.ServerID, int) {
	healthy := health.Healthy()
	if len(healthy) == 0 {
		return "", rotation
	}

	switch alg {
	case model.LeastConnections:
		best := healthy[0]
		for _, s := range healthy[1:] {
			if counts[s] < counts[best] {
				best = s
			}
		}
		return best, rotation

	case model.Weighted:
		candidate := weightedPattern[mod(rotation, len(weightedPattern))]
		if !health[candidate] {
			candidate = healthy[0]
		}
		return candidate, rotation + 1

	default:
		// round-robin; ip-hash is modeled as the same rotation since the
		// simulation has no client identity to hash.
		return healthy[mod(rotation, len(healthy))], rotation + 1
	}
}

// AlgorithmLabel is the edge label used on the routing step.
func AlgorithmLabel(alg model.Algorithm) string {
	switch alg {
	case model.RoundRobin:
		return "ROUND-ROBIN"
	case model.LeastConnections:
		return "LEAST CONN"
	case model.IPHash:
		return "IP HASH"
	case model.Weighted:
		return "WEIGHTED"
	}
	return strings.ToUpper(string(alg))
}

// LBSummary is the configuration line logged at run start.
func LBSummary(alg model.Algorithm) string {
	return "Algorithm: " + strings.ToUpper(string(alg))
}

// MakeLBFlow selects a target and builds the routing sequence. A fully
// unhealthy pool yields the 503 sequence with an empty Chosen.
func MakeLBFlow(alg model.Algorithm, health Health, rotation int, counts Counts) model.LBFlow {
	chosen, next := PickServer(alg, health, rotation, counts)
	request := model.Step{From: model.NodeClient, To: model.NodeLB, Label: "REQUEST", Dot: model.DotRequest, Desc: "Client sends request to Load Balancer", Log: "Client → LB: incoming request", Type: model.LogInfo}

	if chosen == "" {
		steps := []model.Step{request}
		for _, s := range model.Servers {
			steps = append(steps, model.Step{
				From:  model.NodeLB,
				To:    model.NodeID(s),
				Label: "HEALTH CHECK",
				Dot:   model.DotMiss,
				Desc:  fmt.Sprintf("LB checks %s — DOWN", s.Label()),
				Log:   fmt.Sprintf("LB → %s: health check FAILED ✗", strings.ToUpper(string(s))),
				Type:  model.LogError,
			})
		}
		steps = append(steps, model.Step{From: model.NodeLB, To: model.NodeClient, Label: "503 ERROR", Dot: model.DotMiss, Desc: "All servers down — returning 503", Log: "LB → Client: 503 Service Unavailable", Type: model.LogError})
		return model.LBFlow{Steps: numbered(steps), NextRotation: next}
	}

	steps := []model.Step{request}
	for _, s := range model.Servers {
		if health[s] {
			continue
		}
		steps = append(steps, model.Step{
			From:  model.NodeLB,
			To:    model.NodeID(s),
			Label: "HEALTH CHECK",
			Dot:   model.DotMiss,
			Desc:  fmt.Sprintf("LB checks %s — DOWN, skipping", s.Label()),
			Log:   fmt.Sprintf("LB → %s: health check FAILED — rerouting", s.Label()),
			Type:  model.LogError,
			Pause: 200,
		})
	}

	label := AlgorithmLabel(alg)
	steps = append(steps,
		model.Step{From: model.NodeLB, To: model.NodeID(chosen), Label: label, Dot: model.DotStore, Desc: fmt.Sprintf("LB routes to %s using %s", chosen.Label(), label), Log: fmt.Sprintf("LB → %s: forwarded [%s]", chosen.Label(), label), Type: model.LogRoute},
		model.Step{From: model.NodeID(chosen), To: model.NodeLB, Label: "PROCESSED", Dot: model.DotHit, Desc: fmt.Sprintf("%s processes request and responds", chosen.Label()), Log: fmt.Sprintf("%s → LB: 200 OK, request processed", chosen.Label()), Type: model.LogHealth},
		model.Step{From: model.NodeLB, To: model.NodeClient, Label: "RESPONSE", Dot: model.DotRequest, Desc: "Load Balancer returns response to Client", Log: "LB → Client: response delivered ✓", Type: model.LogResponse},
	)
	return model.LBFlow{Steps: numbered(steps), Chosen: chosen, NextRotation: next}
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
