// Package diagram adapts the playback state to the edge descriptors an
// animated renderer draws. Geometry stays in the renderer.
package diagram

import (
	"math"
	"time"

	"github.com/signalsfoundry/sysviz/model"
)

// CompletionGrace is added to the animation duration before the completion
// signal fires, so the traveling indicator has reached its target.
const CompletionGrace = 80 * time.Millisecond

// Edge is an undirected connection between two nodes.
type Edge struct {
	A model.NodeID
	B model.NodeID
}

// CacheEdges is the fixed caching topology.
var CacheEdges = []Edge{
	{model.NodeApp, model.NodeServer},
	{model.NodeServer, model.NodeCache},
	{model.NodeServer, model.NodeDB},
	{model.NodeCache, model.NodeDB},
}

// LBEdges is the fixed load-balancing topology.
var LBEdges = []Edge{
	{model.NodeClient, model.NodeLB},
	{model.NodeLB, model.NodeS1},
	{model.NodeLB, model.NodeS2},
	{model.NodeLB, model.NodeS3},
}

// EdgesFor returns the topology of a scenario.
func EdgesFor(sc model.Scenario) []Edge {
	if sc == model.ScenarioLoadBalancer {
		return LBEdges
	}
	return CacheEdges
}

// Matches reports whether the step travels this edge in either direction.
func (e Edge) Matches(s model.Step) bool {
	return (s.From == e.A && s.To == e.B) || (s.From == e.B && s.To == e.A)
}

// Descriptor is what the renderer needs to draw one edge for one tick.
type Descriptor struct {
	From       model.NodeID `json:"from"`
	To         model.NodeID `json:"to"`
	Active     bool         `json:"active"`
	Label      string       `json:"label,omitempty"`
	Color      string       `json:"color,omitempty"`
	DurationMs int          `json:"durationMs"`
}

// Bind renders the edge set against the active step. At most one edge is
// active; it is oriented along the step's direction.
func Bind(edges []Edge, active *model.Step, dur time.Duration) []Descriptor {
	ms := int(dur / time.Millisecond)
	out := make([]Descriptor, 0, len(edges))
	matched := false
	for _, e := range edges {
		d := Descriptor{From: e.A, To: e.B, DurationMs: ms}
		if active != nil && !matched && e.Matches(*active) {
			matched = true
			d.From, d.To = active.From, active.To
			d.Active = true
			d.Label = active.Label
			d.Color = active.Dot
		}
		out = append(out, d)
	}
	return out
}

// ActiveNodes lists the two endpoints highlighted during a step.
func ActiveNodes(active *model.Step) []model.NodeID {
	if active == nil {
		return nil
	}
	return []model.NodeID{active.From, active.To}
}

// CacheStepDuration converts a caching speed multiplier into the per-step
// animation time: round(900ms / speed). Non-positive speeds use 1x.
func CacheStepDuration(speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(math.Round(900/speed)) * time.Millisecond
}

// LBStepDuration treats the load-balancing speed setting as the step
// duration itself, in milliseconds.
func LBStepDuration(speedMs int) time.Duration {
	if speedMs <= 0 {
		speedMs = 800
	}
	return time.Duration(speedMs) * time.Millisecond
}

// CompletionDelay is when the renderer's completion signal fires for a step
// animated over dur.
func CompletionDelay(dur time.Duration) time.Duration {
	return dur + CompletionGrace
}
