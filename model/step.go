package model

// NodeID identifies a topology node in a scenario diagram.
type NodeID string

// Caching topology.
const (
	NodeApp    NodeID = "app"
	NodeServer NodeID = "server"
	NodeCache  NodeID = "cache"
	NodeDB     NodeID = "db"
)

// Load-balancing topology. The backend replicas reuse the ServerID values.
const (
	NodeClient NodeID = "client"
	NodeLB     NodeID = "lb"
	NodeS1     NodeID = NodeID(ServerS1)
	NodeS2     NodeID = NodeID(ServerS2)
	NodeS3     NodeID = NodeID(ServerS3)
)

// LogType tags a step for log coloring and tooltip lookup.
type LogType string

const (
	LogInfo     LogType = "info"
	LogHit      LogType = "hit"
	LogMiss     LogType = "miss"
	LogFetch    LogType = "fetch"
	LogStore    LogType = "store"
	LogAck      LogType = "ack"
	LogResponse LogType = "response"
	LogRoute    LogType = "route"
	LogError    LogType = "error"
	LogHealth   LogType = "health"
)

// Dot color tokens carried by steps.
const (
	DotRequest    = "#3b82f6"
	DotHit        = "#10b981"
	DotMiss       = "#ef4444"
	DotFetch      = "#7c3aed"
	DotStore      = "#f59e0b"
	DotPreCached  = "#06b6d4"
	DotBackground = "#94a3b8"
)

// DefaultPauseMs is the wait after a step's animation when Pause is unset.
const DefaultPauseMs = 160

// Step is one directed, animated transition between two nodes.
// Steps are values; a generated sequence is never modified after creation.
type Step struct {
	ID    string  `json:"id"`
	From  NodeID  `json:"from"`
	To    NodeID  `json:"to"`
	Label string  `json:"label"`
	Dot   string  `json:"dot"`
	Desc  string  `json:"desc"`
	Log   string  `json:"log"`
	Type  LogType `json:"type"`
	// Pause overrides DefaultPauseMs when non-zero.
	Pause int `json:"pause,omitempty"`
}

// HasPause reports whether the step carries an explicit pause override.
func (s Step) HasPause() bool { return s.Pause > 0 }

// CacheFlow is a generated caching run.
type CacheFlow struct {
	Steps []Step
	// IsHit is nil for writes, which count as neither hit nor miss.
	IsHit *bool
}

// LBFlow is a generated load-balancing run.
type LBFlow struct {
	Steps []Step
	// Chosen is empty when every target was down.
	Chosen ServerID
	// NextRotation is the rotation counter to carry into the next run.
	NextRotation int
}

// Failed reports whether the flow models a total routing failure.
func (f LBFlow) Failed() bool { return f.Chosen == "" }
