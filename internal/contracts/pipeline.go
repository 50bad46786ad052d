package contracts

import (
	"sync"
	"time"
)

// Stage names one step of an evaluation pass. Used in traces, logs and metrics.
type Stage string

const (
	StagePrices     Stage = "prices"
	StageSchedule   Stage = "schedule"
	StageBasket     Stage = "basket"
	StageRedemption Stage = "redemption"
	StageEvents     Stage = "events"
	StageReport     Stage = "report"
)

// TraceLevel is the severity of a trace entry
type TraceLevel string

const (
	TraceInfo  TraceLevel = "info"
	TraceWarn  TraceLevel = "warn"
	TraceError TraceLevel = "error"
)

// TraceEntry is one step recorded during an evaluation
type TraceEntry struct {
	At      time.Time              `json:"at"`
	Stage   Stage                  `json:"stage"`
	Level   TraceLevel             `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Observer receives trace entries as they are recorded
type Observer func(TraceEntry)

// Trace is the per-evaluation record returned alongside a report. Safe for
// concurrent use.
type Trace struct {
	mu       sync.Mutex
	entries  []TraceEntry
	observer Observer
	now      func() time.Time
}

// NewTrace creates a trace; observer may be nil
func NewTrace(observer Observer) *Trace {
	return &Trace{observer: observer, now: time.Now}
}

// Add records an entry
func (t *Trace) Add(stage Stage, level TraceLevel, msg string, fields map[string]interface{}) {
	if t == nil {
		return
	}
	entry := TraceEntry{At: t.now(), Stage: stage, Level: level, Message: msg, Fields: fields}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer(entry)
	}
}

// Info records an info entry
func (t *Trace) Info(stage Stage, msg string, fields map[string]interface{}) {
	t.Add(stage, TraceInfo, msg, fields)
}

// Warn records a warning entry
func (t *Trace) Warn(stage Stage, msg string, fields map[string]interface{}) {
	t.Add(stage, TraceWarn, msg, fields)
}

// Error records an error entry
func (t *Trace) Error(stage Stage, msg string, fields map[string]interface{}) {
	t.Add(stage, TraceError, msg, fields)
}

// Entries returns a copy of the recorded entries
func (t *Trace) Entries() []TraceEntry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEntry(nil), t.entries...)
}

// Count returns the number of entries at level
func (t *Trace) Count(level TraceLevel) int {
	n := 0
	for _, e := range t.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}
