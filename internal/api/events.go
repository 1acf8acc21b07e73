package api

import (
	"sync"

	"bookforge/internal/progress"
)

const (
	// ringCapacity bounds retained events per job. Events are throttled
	// upstream, so this covers several minutes of history.
	ringCapacity = 256
	// maxJobRings bounds how many finished jobs keep their event history.
	maxJobRings = 32
)

// StoredEvent is a progress event with its hub-assigned sequence number.
type StoredEvent struct {
	Sequence uint64         `json:"sequence"`
	Event    progress.Event `json:"event"`
}

type jobRing struct {
	events   []StoredEvent
	lastSeq  uint64
	terminal bool
}

// Hub buffers progress events per job for cursor-paged polling. It
// implements progress.Sink and is handed to the orchestrator as its
// broadcast target.
type Hub struct {
	mu    sync.Mutex
	seq   uint64
	rings map[string]*jobRing
	order []string
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{rings: make(map[string]*jobRing)}
}

// OnProgress stores one event under its job's ring.
func (h *Hub) OnProgress(event progress.Event) {
	if event.JobID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ring, ok := h.rings[event.JobID]
	if !ok {
		ring = &jobRing{}
		h.rings[event.JobID] = ring
		h.order = append(h.order, event.JobID)
		h.evictLocked()
	}
	h.seq++
	ring.lastSeq = h.seq
	ring.events = append(ring.events, StoredEvent{Sequence: h.seq, Event: event})
	if len(ring.events) > ringCapacity {
		ring.events = ring.events[len(ring.events)-ringCapacity:]
	}
	if event.Phase == progress.PhaseComplete || event.Phase == progress.PhaseError {
		ring.terminal = true
	}
}

// Events returns up to limit events for a job with sequence > after, plus
// the cursor for the next poll. A job with no history returns an empty
// slice and cursor after unchanged.
func (h *Hub) Events(jobID string, after uint64, limit int) ([]StoredEvent, uint64) {
	if limit <= 0 {
		limit = ringCapacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ring, ok := h.rings[jobID]
	if !ok {
		return nil, after
	}
	var out []StoredEvent
	next := after
	for _, stored := range ring.events {
		if stored.Sequence <= after {
			continue
		}
		out = append(out, stored)
		next = stored.Sequence
		if len(out) >= limit {
			break
		}
	}
	return out, next
}

// Known reports whether the hub has history for a job.
func (h *Hub) Known(jobID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rings[jobID]
	return ok
}

// evictLocked drops the oldest terminal job ring when over capacity. Live
// jobs are never evicted.
func (h *Hub) evictLocked() {
	if len(h.order) <= maxJobRings {
		return
	}
	for i, jobID := range h.order {
		ring, ok := h.rings[jobID]
		if !ok || ring.terminal {
			delete(h.rings, jobID)
			h.order = append(h.order[:i], h.order[i+1:]...)
			return
		}
	}
}
