package reassembly

import "sync"

// registry tracks live jobs. Membership is the single source of truth for
// "is this job still active": exit handlers and cancellation both consult it
// before acting, and removal always happens before the process is signaled.
type registry struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*job)}
}

func (r *registry) add(j *job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.id] = j
}

// remove takes ownership of a live job. The second return is false when the
// job was already removed, which callers must treat as "someone else owns
// the teardown".
func (r *registry) remove(jobID string) (*job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if ok {
		delete(r.jobs, jobID)
	}
	return j, ok
}

func (r *registry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	return ids
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
