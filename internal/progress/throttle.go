package progress

import "time"

// streamThrottle rate-limits one output stream. A newly computed event
// overwrites the single pending slot rather than queuing, so the event
// released when the window opens always reflects the most recent known
// state.
type streamThrottle struct {
	interval time.Duration
	lastEmit time.Time
	pending  *Event
}

func newStreamThrottle(interval time.Duration) *streamThrottle {
	return &streamThrottle{interval: interval}
}

// open reports whether the throttle window has elapsed.
func (t *streamThrottle) open(now time.Time) bool {
	return t.lastEmit.IsZero() || now.Sub(t.lastEmit) >= t.interval
}

// offer hands an event to the throttle. The returned event is non-nil when
// it should be delivered immediately; otherwise it is parked in the pending
// slot. Offering flushes an older pending event first when the window has
// opened in the meantime.
func (t *streamThrottle) offer(event Event, now time.Time) *Event {
	if !t.open(now) {
		t.pending = &event
		return nil
	}
	t.pending = nil
	t.lastEmit = now
	return &event
}

// flush releases the pending event if one is parked, regardless of window
// state. Called on process exit so the final burst state is never lost.
func (t *streamThrottle) flush(now time.Time) *Event {
	if t.pending == nil {
		return nil
	}
	event := t.pending
	t.pending = nil
	t.lastEmit = now
	return event
}
