package model

// LogEntry is one line of the chronological event trace.
type LogEntry struct {
	ID        uint64  `json:"id"`
	Timestamp string  `json:"ts"`
	Message   string  `json:"msg"`
	Type      LogType `json:"type"`
}
