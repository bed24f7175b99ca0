// Package eventlog implements the append-only runtime event log attached to
// every run. Each run owns exactly one log; logs are never shared across
// concurrent runs.
package eventlog

import (
	"time"

	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
)

// Log is an ordered, append-only sequence of runtime events. Published
// events are never mutated or deleted.
type Log struct {
	events   []model.RuntimeEvent
	sequence int
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Publish appends an event with the next 1-based sequence number.
func (l *Log) Publish(eventType, source, detail string, impactScore float64, timestamp time.Time) {
	l.sequence++
	l.events = append(l.events, model.RuntimeEvent{
		Sequence:    l.sequence,
		Timestamp:   timestamp,
		EventType:   eventType,
		Source:      source,
		Detail:      detail,
		ImpactScore: num.Round6(impactScore),
	})
}

// Snapshot returns a copy of all events ordered by sequence.
func (l *Log) Snapshot() []model.RuntimeEvent {
	out := make([]model.RuntimeEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports the number of published events.
func (l *Log) Len() int {
	return len(l.events)
}
