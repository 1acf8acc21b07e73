package progress

// Phase is one stage of the reassembly state machine.
type Phase string

const (
	PhasePreparing Phase = "preparing"
	PhaseCombining Phase = "combining"
	PhaseEncoding  Phase = "encoding"
	PhaseMetadata  Phase = "metadata"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
)

// Event is one progress update for a reassembly job. Percentage is monotonic
// non-decreasing within a job; phases advance in the fixed order preparing,
// combining, encoding, metadata, complete, with error reachable from any.
type Event struct {
	JobID          string `json:"jobId"`
	Phase          Phase  `json:"phase"`
	Percentage     int    `json:"percentage"`
	CurrentChapter int    `json:"currentChapter,omitempty"`
	TotalChapters  int    `json:"totalChapters,omitempty"`
	Message        string `json:"message,omitempty"`
	ETASeconds     int    `json:"etaSeconds,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Sink receives progress events. Implementations must not block; events are
// already rate-limited before delivery.
type Sink interface {
	OnProgress(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) OnProgress(event Event) { f(event) }
