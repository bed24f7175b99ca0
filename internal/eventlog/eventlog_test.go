package eventlog

import (
	"testing"
	"time"
)

func TestPublishAssignsMonotonicSequence(t *testing.T) {
	l := New()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.Publish("REGIME_SELECTED", "SIMULATOR", "calm", 1.05, ts)
	l.Publish("FAULT_INJECTED", "SIMULATOR", "latency", 1.5, ts)
	l.Publish("REPLAY_READY", "SIMULATOR", "frames", 3, ts)

	events := l.Snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Sequence != i+1 {
			t.Fatalf("event %d has sequence %d", i, ev.Sequence)
		}
		if !ev.Timestamp.Equal(ts) {
			t.Fatalf("event %d timestamp mismatch", i)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	l := New()
	l.Publish("A", "S", "d", 0, time.Now().UTC())
	snap := l.Snapshot()
	snap[0].EventType = "MUTATED"
	if l.Snapshot()[0].EventType != "A" {
		t.Fatal("snapshot mutation leaked into log")
	}
}

func TestImpactScoreRounded(t *testing.T) {
	l := New()
	l.Publish("A", "S", "d", 0.12345649, time.Now().UTC())
	if got := l.Snapshot()[0].ImpactScore; got != 0.123456 {
		t.Fatalf("expected rounded impact score, got %v", got)
	}
}
