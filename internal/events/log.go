package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/notes/backend/internal/contracts"
)

// MemoryLog is an in-process contracts.EventLog. Appends are atomic per key,
// so concurrent detections of the same product cannot record a duplicate.
type MemoryLog struct {
	mu     sync.Mutex
	events []contracts.Event
	last   map[string]time.Time // dedup key -> latest DetectedAt
	now    func() time.Time
}

// NewMemoryLog creates an empty log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{last: make(map[string]time.Time), now: time.Now}
}

// Append implements contracts.EventLog
func (l *MemoryLog) Append(_ context.Context, event contracts.Event, window time.Duration) (bool, error) {
	key := event.DedupKey()
	detectedAt := event.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = l.now()
		event.DetectedAt = detectedAt
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.last[key]; ok && suppressed(prev, detectedAt, window) {
		return false, nil
	}
	l.last[key] = detectedAt
	l.events = append(l.events, event)
	return true, nil
}

// suppressed reports whether a record at prev blocks a new one at now
func suppressed(prev, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	return now.Sub(prev) < window
}

// ListByProduct implements contracts.EventLog, ordered by event date
func (l *MemoryLog) ListByProduct(_ context.Context, productID string) ([]contracts.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []contracts.Event
	for _, e := range l.events {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

// Len returns the number of recorded events
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func sortEvents(events []contracts.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return typeOrder(events[i].Type) < typeOrder(events[j].Type)
	})
}

// typeOrder keeps same-day events in lifecycle order
func typeOrder(t contracts.EventType) int {
	switch t {
	case contracts.EventBarrierBreach, contracts.EventBarrierRecovered:
		return 0
	case contracts.EventCouponMemorized, contracts.EventCouponPaid:
		return 1
	case contracts.EventAutocall, contracts.EventIssuerCall:
		return 2
	case contracts.EventFinalObservation:
		return 3
	case contracts.EventProductMatured:
		return 4
	}
	return 5
}
