package reassembly

import "sync"

// stderrTailLimit bounds the retained stderr per job. A failing engine can
// spray megabytes; only the end of the stream carries the actual diagnosis.
const stderrTailLimit = 10 * 1024

// tailBuffer keeps the last N bytes written to it, dropping the oldest.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = stderrTailLimit
	}
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(p) >= t.limit {
		t.data = append(t.data[:0], p[len(p)-t.limit:]...)
		return
	}
	t.data = append(t.data, p...)
	if overflow := len(t.data) - t.limit; overflow > 0 {
		t.data = t.data[overflow:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.data)
}
