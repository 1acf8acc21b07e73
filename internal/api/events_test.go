package api

import (
	"fmt"
	"testing"

	"bookforge/internal/progress"
)

func TestHubCursorPaging(t *testing.T) {
	hub := NewHub()
	for pct := 1; pct <= 5; pct++ {
		hub.OnProgress(progress.Event{JobID: "job-1", Phase: progress.PhaseCombining, Percentage: pct * 10})
	}

	events, next := hub.Events("job-1", 0, 3)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Event.Percentage != 10 {
		t.Fatalf("expected oldest event first, got %d", events[0].Event.Percentage)
	}

	events, next = hub.Events("job-1", next, 0)
	if len(events) != 2 {
		t.Fatalf("expected remaining 2 events, got %d", len(events))
	}
	if events[1].Event.Percentage != 50 {
		t.Fatalf("expected newest event last, got %d", events[1].Event.Percentage)
	}

	events, again := hub.Events("job-1", next, 0)
	if len(events) != 0 || again != next {
		t.Fatalf("expected empty poll with stable cursor, got %d events next=%d", len(events), again)
	}
}

func TestHubUnknownJob(t *testing.T) {
	hub := NewHub()
	events, next := hub.Events("job-missing", 7, 0)
	if len(events) != 0 || next != 7 {
		t.Fatalf("expected empty result with cursor unchanged, got %d events next=%d", len(events), next)
	}
	if hub.Known("job-missing") {
		t.Fatal("unknown job must not be known")
	}
}

func TestHubRingCapacity(t *testing.T) {
	hub := NewHub()
	for i := 0; i < ringCapacity+50; i++ {
		hub.OnProgress(progress.Event{JobID: "job-1", Percentage: i})
	}
	events, _ := hub.Events("job-1", 0, ringCapacity+100)
	if len(events) != ringCapacity {
		t.Fatalf("expected ring capped at %d, got %d", ringCapacity, len(events))
	}
	if events[0].Event.Percentage != 50 {
		t.Fatalf("expected oldest events dropped, got first percentage %d", events[0].Event.Percentage)
	}
}

func TestHubEvictsOldestTerminalJob(t *testing.T) {
	hub := NewHub()
	for i := 0; i < maxJobRings+1; i++ {
		jobID := fmt.Sprintf("job-%03d", i)
		hub.OnProgress(progress.Event{JobID: jobID, Phase: progress.PhaseComplete, Percentage: 100})
	}
	if hub.Known("job-000") {
		t.Fatal("expected oldest terminal job to be evicted")
	}
	if !hub.Known(fmt.Sprintf("job-%03d", maxJobRings)) {
		t.Fatal("expected newest job to survive eviction")
	}
}

func TestHubNeverEvictsLiveJobs(t *testing.T) {
	hub := NewHub()
	// All jobs still running: over capacity, nothing is evictable.
	for i := 0; i < maxJobRings+5; i++ {
		jobID := fmt.Sprintf("job-%03d", i)
		hub.OnProgress(progress.Event{JobID: jobID, Phase: progress.PhaseCombining, Percentage: 10})
	}
	for i := 0; i < maxJobRings+5; i++ {
		if !hub.Known(fmt.Sprintf("job-%03d", i)) {
			t.Fatalf("live job %d must not be evicted", i)
		}
	}
}
