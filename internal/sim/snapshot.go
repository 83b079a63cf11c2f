package sim

import (
	"github.com/signalsfoundry/sysviz/internal/diagram"
	"github.com/signalsfoundry/sysviz/internal/stats"
	"github.com/signalsfoundry/sysviz/model"
)

// Snapshot is an immutable view of a simulator taken inside its critical
// section. Slices and pointers are copies owned by the snapshot.
type Snapshot struct {
	Scenario model.Scenario `json:"scenario"`
	Cache    *CacheSettings `json:"cacheConfig,omitempty"`
	LB       *LBSettings    `json:"lbConfig,omitempty"`

	Running    bool        `json:"running"`
	RunID      string      `json:"runId,omitempty"`
	Index      int         `json:"index"`
	Steps      int         `json:"steps"`
	DoneCount  int         `json:"doneCount"`
	ActiveStep *model.Step `json:"activeStep,omitempty"`
	Caption    string      `json:"caption"`

	StepDurationMs int                  `json:"stepDurationMs"`
	Edges          []diagram.Descriptor `json:"edges"`
	ActiveNodes    []model.NodeID       `json:"activeNodes,omitempty"`

	Logs []model.LogEntry `json:"logs"`

	// Totals is the headline counter pair shared by both scenarios. For
	// load balancing, hits are routed runs and misses are failures.
	Totals    stats.CacheStats        `json:"totals"`
	HitRate   *float64                `json:"hitRate,omitempty"`
	LBStats   *stats.LBStats          `json:"lbStats,omitempty"`
	LBSummary *stats.LBSummary        `json:"lbSummary,omitempty"`
	Health    map[model.ServerID]bool `json:"health,omitempty"`
	Servers   []stats.ServerMetrics   `json:"servers,omitempty"`

	Hint *model.Hint `json:"hint,omitempty"`
}

func (s *session) baseSnapshotLocked(dur int) Snapshot {
	active := s.player.Active()
	snap := Snapshot{
		Scenario:       s.scenario,
		Running:        s.player.Running(),
		RunID:          s.player.RunID(),
		Index:          s.player.Index(),
		Steps:          s.player.Len(),
		DoneCount:      s.doneCount,
		ActiveStep:     active,
		Caption:        s.caption,
		StepDurationMs: dur,
		Edges:          diagram.Bind(diagram.EdgesFor(s.scenario), active, msDuration(dur)),
		ActiveNodes:    diagram.ActiveNodes(active),
		Logs:           s.log.Entries(),
	}
	if s.hint != nil {
		h := *s.hint
		snap.Hint = &h
	}
	return snap
}
