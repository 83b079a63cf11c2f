// Package stats folds completed runs into cumulative counters and derives
// the read-only views shown next to the diagram.
package stats

import (
	"math"

	"github.com/signalsfoundry/sysviz/model"
)

// CacheStats accumulates caching runs until an explicit reset.
type CacheStats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
	Total  int `json:"total"`
	// Ms is the elapsed time of the most recent run, not a sum.
	Ms int64 `json:"ms"`
}

// FoldCache returns prev with one more run applied. isHit is nil for writes.
func FoldCache(prev CacheStats, isHit *bool, elapsedMs int64) CacheStats {
	next := prev
	if isHit != nil {
		if *isHit {
			next.Hits++
		} else {
			next.Misses++
		}
	}
	next.Total++
	next.Ms = elapsedMs
	return next
}

// HitRate is hits over classified reads as a percentage rounded to one
// decimal, 0 when nothing has been classified yet.
func (s CacheStats) HitRate() float64 {
	classified := s.Hits + s.Misses
	if classified == 0 {
		return 0
	}
	return round1(float64(s.Hits) / float64(classified) * 100)
}

// LBStats accumulates load-balancing runs until an explicit reset.
type LBStats struct {
	Total        int                    `json:"total"`
	Failed       int                    `json:"failed"`
	Ms           int64                  `json:"ms"`
	ServerCounts map[model.ServerID]int `json:"serverCounts"`
}

// NewLBStats returns zeroed stats with a count slot for every target.
func NewLBStats() LBStats {
	counts := make(map[model.ServerID]int, len(model.Servers))
	for _, s := range model.Servers {
		counts[s] = 0
	}
	return LBStats{ServerCounts: counts}
}

// FoldLB returns prev with one more run applied; an empty chosen marks a
// total failure. prev is not modified.
func FoldLB(prev LBStats, chosen model.ServerID, elapsedMs int64) LBStats {
	next := LBStats{
		Total:        prev.Total + 1,
		Failed:       prev.Failed,
		Ms:           elapsedMs,
		ServerCounts: make(map[model.ServerID]int, len(model.Servers)),
	}
	for _, s := range model.Servers {
		next.ServerCounts[s] = prev.ServerCounts[s]
	}
	if chosen == "" {
		next.Failed++
	} else {
		next.ServerCounts[chosen]++
	}
	return next
}

// Clone returns a deep copy.
func (s LBStats) Clone() LBStats {
	out := s
	out.ServerCounts = make(map[model.ServerID]int, len(s.ServerCounts))
	for k, v := range s.ServerCounts {
		out.ServerCounts[k] = v
	}
	return out
}

// Routed is the number of runs that reached a target.
func (s LBStats) Routed() int { return s.Total - s.Failed }

// LBSummary is the derived view over LBStats.
type LBSummary struct {
	SuccessRate    int     `json:"successRate"`
	ErrorRate      int     `json:"errorRate"`
	AvgLatencyMs   int     `json:"avgLatencyMs"`
	P95LatencyMs   int     `json:"p95LatencyMs"`
	RequestsPerSec int     `json:"requestsPerSec"`
	Share          []Share `json:"share"`
}

// Share is one target's portion of all runs.
type Share struct {
	Server  model.ServerID `json:"server"`
	Count   int            `json:"count"`
	Percent int            `json:"percent"`
}

// Summary derives rates and latencies. Percentages are rounded to integers.
func (s LBStats) Summary() LBSummary {
	var out LBSummary
	if s.Total > 0 {
		out.SuccessRate = roundInt(float64(s.Routed()) / float64(s.Total) * 100)
		out.ErrorRate = roundInt(float64(s.Failed) / float64(s.Total) * 100)
		out.AvgLatencyMs = roundInt(float64(s.Ms) / float64(s.Total))
	}
	out.P95LatencyMs = roundInt(float64(out.AvgLatencyMs) * 1.45)
	if s.Ms > 0 {
		out.RequestsPerSec = roundInt(float64(s.Total) / float64(s.Ms) * 1000)
	}
	for _, id := range model.Servers {
		sh := Share{Server: id, Count: s.ServerCounts[id]}
		if s.Total > 0 {
			sh.Percent = roundInt(float64(sh.Count) / float64(s.Total) * 100)
		}
		out.Share = append(out.Share, sh)
	}
	return out
}

// ServerMetrics is the per-target load estimate shown on each replica.
type ServerMetrics struct {
	ID                model.ServerID `json:"id"`
	Healthy           bool           `json:"healthy"`
	CPU               float64        `json:"cpu"`
	Memory            float64        `json:"memory"`
	LatencyMs         int            `json:"latencyMs"`
	ActiveConnections int            `json:"activeConnections"`
}

// ServerView derives per-target metrics from the routed counts. It is a
// view: nothing here is stored between runs.
func ServerView(s LBStats, health map[model.ServerID]bool) []ServerMetrics {
	routed := s.Routed()
	out := make([]ServerMetrics, 0, len(model.Servers))
	for _, id := range model.Servers {
		var load float64
		if routed > 0 {
			load = float64(s.ServerCounts[id]) / float64(routed) * 100
		}
		out = append(out, ServerMetrics{
			ID:                id,
			Healthy:           health[id],
			CPU:               load,
			Memory:            math.Min(load+10, 100),
			LatencyMs:         roundInt(30 + load*0.5),
			ActiveConnections: s.ServerCounts[id],
		})
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// roundInt rounds half up like the renderer does.
func roundInt(v float64) int { return int(math.Floor(v + 0.5)) }
