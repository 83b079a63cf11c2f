// Package eventlog keeps the bounded, chronological trace shown beside the
// diagram.
package eventlog

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/sysviz/model"
)

// MaxEntries bounds the trace. Older entries are dropped first.
const MaxEntries = 70

// nextID is shared by every recorder in the process and never reset, so
// ids stay unique across runs, resets and simulators.
var nextID atomic.Uint64

// Recorder is a sliding window of log entries. It is not safe for
// concurrent use; the owning simulator serializes access.
type Recorder struct {
	now     func() time.Time
	entries []model.LogEntry
}

// NewRecorder returns an empty recorder stamping entries with now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Append records a message and returns the stored entry.
func (r *Recorder) Append(msg string, typ model.LogType) model.LogEntry {
	e := model.LogEntry{
		ID:        nextID.Add(1) - 1,
		Timestamp: FormatTimestamp(r.now()),
		Message:   msg,
		Type:      typ,
	}
	r.entries = append(r.entries, e)
	if over := len(r.entries) - MaxEntries; over > 0 {
		// Copy down so the backing array does not grow without bound.
		n := copy(r.entries, r.entries[over:])
		r.entries = r.entries[:n]
	}
	return e
}

// Entries returns a copy in insertion order.
func (r *Recorder) Entries() []model.LogEntry {
	out := make([]model.LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len reports the number of retained entries.
func (r *Recorder) Len() int { return len(r.entries) }

// Clear drops every entry. Ids keep increasing afterwards.
func (r *Recorder) Clear() { r.entries = nil }

// FormatTimestamp renders minutes, seconds and centiseconds as mm:ss.cc.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%02d:%02d.%02d", t.Minute(), t.Second(), t.Nanosecond()/int(10*time.Millisecond))
}
