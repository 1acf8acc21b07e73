package progress

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config describes one job's parser.
type Config struct {
	JobID          string
	Sink           Sink
	StdoutInterval time.Duration
	StderrInterval time.Duration
	// TotalChapters seeds the chapter count when the caller already knows it
	// from session state; the engine's own announcement still wins.
	TotalChapters int
	// TranslatePath rewrites engine-reported output paths (WSL to native).
	TranslatePath func(string) string
}

// Parser is a stateful classifier for one job's engine output. Both streams
// may be fed from separate goroutines; all state is guarded by one mutex.
type Parser struct {
	jobID     string
	sink      Sink
	translate func(string) string
	now       func() time.Time

	mu                sync.Mutex
	phase             Phase
	percentage        int
	currentChapter    int
	totalChapters     int
	chaptersCompleted int
	message           string
	encodingStartedAt time.Time
	lastProgressAt    time.Time
	exportAnchorPct   int
	exportAnchorAt    time.Time
	etaSeconds        int
	outputPath        string

	stdout *streamThrottle
	stderr *streamThrottle
}

// NewParser constructs a parser in the preparing phase.
func NewParser(cfg Config) *Parser {
	if cfg.StdoutInterval <= 0 {
		cfg.StdoutInterval = 500 * time.Millisecond
	}
	if cfg.StderrInterval <= 0 {
		cfg.StderrInterval = time.Second
	}
	translate := cfg.TranslatePath
	if translate == nil {
		translate = func(path string) string { return path }
	}
	sink := cfg.Sink
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	return &Parser{
		jobID:           cfg.JobID,
		sink:            sink,
		translate:       translate,
		now:             time.Now,
		phase:           PhasePreparing,
		totalChapters:   cfg.TotalChapters,
		exportAnchorPct: -1,
		stdout:          newStreamThrottle(cfg.StdoutInterval),
		stderr:          newStreamThrottle(cfg.StderrInterval),
	}
}

// SetClockForTests overrides the parser's time source.
func (p *Parser) SetClockForTests(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// FeedStdout consumes one raw stdout chunk.
func (p *Parser) FeedStdout(chunk []byte) { p.feed(chunk, p.stdout, false) }

// FeedStderr consumes one raw stderr chunk.
func (p *Parser) FeedStderr(chunk []byte) { p.feed(chunk, p.stderr, true) }

func (p *Parser) feed(chunk []byte, throttle *streamThrottle, isStderr bool) {
	if len(chunk) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !containsRareMarker(chunk) {
		// The byte classifiers update state without materializing a string,
		// so a burst of hundreds of lines per second costs no allocations.
		if p.scanHighFrequency(chunk, isStderr, now) {
			p.deliver(throttle, now)
		} else if throttle.open(now) {
			p.flushPending(throttle, now)
		}
		return
	}

	// Rare markers change phase; always decode and classify line by line.
	for _, line := range strings.Split(string(chunk), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		matched := false
		for _, m := range lineMatchers {
			if m.match(line) {
				m.apply(p, line, now)
				matched = true
				break
			}
		}
		if !matched {
			// High-frequency content can share a chunk with rare markers.
			p.scanHighFrequency([]byte(line), isStderr, now)
		}
	}
	p.deliver(throttle, now)
}

// scanHighFrequency updates parser state from the allocation-free byte
// classifiers. Reports whether the chunk carried any recognized progress.
func (p *Parser) scanHighFrequency(chunk []byte, isStderr bool, now time.Time) bool {
	if pct := percentAfter(chunk, markerAssemble); pct >= 0 {
		p.applyAssemble(pct, now)
		return true
	}
	if pct := percentAfter(chunk, markerExport); pct >= 0 {
		p.applyExport(pct, isStderr, now)
		return true
	}
	if p.phase == PhaseEncoding {
		if seconds := ffmpegMediaSeconds(chunk); seconds >= 0 {
			p.applyFFmpegTime(seconds, now)
			return true
		}
	}
	return false
}

func (p *Parser) applyAssemble(pct int, now time.Time) {
	p.enterPhase(PhaseCombining)
	if p.totalChapters > 0 {
		within := float64(p.chaptersCompleted) + float64(pct)/100
		p.setPercent(int(math.Round(within / float64(p.totalChapters) * 50)))
	} else {
		p.setPercent(int(math.Round(float64(pct) * 0.4)))
	}
	p.message = "Assembling chapter audio"
	p.lastProgressAt = now
}

func (p *Parser) applyExport(pct int, isStderr bool, now time.Time) {
	p.enterPhase(PhaseEncoding)
	p.setPercent(int(math.Round(50 + float64(pct)*0.45)))
	p.message = "Exporting audiobook"
	if isStderr {
		if p.exportAnchorPct < 0 || pct < p.exportAnchorPct {
			// A regressing percentage means a new export pass started.
			p.exportAnchorPct = pct
			p.exportAnchorAt = now
			p.etaSeconds = 0
		} else if pct > p.exportAnchorPct {
			elapsed := now.Sub(p.exportAnchorAt).Seconds()
			rate := float64(pct-p.exportAnchorPct) / elapsed
			if rate > 0 {
				p.etaSeconds = int(float64(100-pct) / rate)
			}
		}
	}
	p.lastProgressAt = now
}

func (p *Parser) applyFFmpegTime(mediaSeconds int, now time.Time) {
	estimate := 55 + mediaSeconds/60
	if estimate > 85 {
		estimate = 85
	}
	p.setPercent(estimate)
	p.message = "Encoding audio"
	p.lastProgressAt = now
}

// Heartbeat nudges the percentage during long silent transcodes so the UI
// never appears frozen. Emits directly, bypassing stream throttles; the
// caller's timer already bounds the frequency. Capped below 90 so real
// export progress always lands ahead of it.
func (p *Parser) Heartbeat() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if p.phase != PhaseEncoding {
		return
	}
	if now.Sub(p.lastProgressAt) < 5*time.Second {
		return
	}
	if p.percentage >= 89 {
		return
	}
	p.percentage++
	p.message = "Encoding audio"
	p.sink.OnProgress(p.snapshot())
}

// Flush releases any pending throttled events immediately. Called on process
// exit, before the terminal event, so the last burst state is delivered.
func (p *Parser) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.flushPending(p.stdout, now)
	p.flushPending(p.stderr, now)
}

// flushPending releases a parked event, emitting the current state rather
// than the parked copy: a heartbeat may have raised the percentage since the
// event was parked, and emissions must stay monotonic.
func (p *Parser) flushPending(throttle *streamThrottle, now time.Time) {
	if throttle.flush(now) != nil {
		p.sink.OnProgress(p.snapshot())
	}
}

// Phase returns the current phase.
func (p *Parser) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Percentage returns the last computed percentage.
func (p *Parser) Percentage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percentage
}

// OutputPath returns the engine-reported output file path, already
// translated to the native form, or "" when the engine never reported one.
func (p *Parser) OutputPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputPath
}

// TotalChapters returns the discovered chapter count, 0 when unknown.
func (p *Parser) TotalChapters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalChapters
}

func (p *Parser) deliver(throttle *streamThrottle, now time.Time) {
	if event := throttle.offer(p.snapshot(), now); event != nil {
		p.sink.OnProgress(*event)
	}
}

func (p *Parser) snapshot() Event {
	return Event{
		JobID:          p.jobID,
		Phase:          p.phase,
		Percentage:     p.percentage,
		CurrentChapter: p.currentChapter,
		TotalChapters:  p.totalChapters,
		Message:        p.message,
		ETASeconds:     p.etaSeconds,
	}
}

var phaseRank = map[Phase]int{
	PhasePreparing: 0,
	PhaseCombining: 1,
	PhaseEncoding:  2,
	PhaseMetadata:  3,
	PhaseComplete:  4,
	PhaseError:     5,
}

// enterPhase advances the phase, never backwards: a stray combining line
// arriving after the encode started must not regress the state machine.
func (p *Parser) enterPhase(phase Phase) {
	if phaseRank[phase] > phaseRank[p.phase] {
		p.phase = phase
	}
}

// setPercent raises the percentage, clamped monotonic and below 100; the
// terminal event owns 100.
func (p *Parser) setPercent(pct int) {
	if pct > 99 {
		pct = 99
	}
	if pct > p.percentage {
		p.percentage = pct
	}
}

type lineMatcher struct {
	match func(string) bool
	apply func(*Parser, string, time.Time)
}

// lineMatchers is the ordered classification table for rare lines. First
// match wins; unmatched lines are never an error.
var lineMatchers = []lineMatcher{
	{
		// "Found 12 chapters to assemble"
		match: func(line string) bool {
			return strings.HasPrefix(line, "Found ") && strings.Contains(line, "chapter")
		},
		apply: func(p *Parser, line string, now time.Time) {
			if n, ok := firstInt(line); ok && n > 0 {
				p.totalChapters = n
			}
			p.enterPhase(PhaseCombining)
			p.setPercent(1)
			p.message = line
			p.lastProgressAt = now
		},
	},
	{
		// "Processing chapter 3 of 12: The Journey"
		match: func(line string) bool { return strings.HasPrefix(line, "Processing chapter") },
		apply: func(p *Parser, line string, now time.Time) {
			p.enterPhase(PhaseCombining)
			if n, ok := firstInt(line); ok {
				p.currentChapter = n
			} else {
				p.currentChapter++
			}
			if p.totalChapters == 0 {
				if total, ok := intAfter(line, " of "); ok {
					p.totalChapters = total
				}
			}
			if p.totalChapters > 0 {
				p.setPercent(int(math.Round(float64(p.currentChapter-1) / float64(p.totalChapters) * 50)))
			}
			p.message = line
			p.lastProgressAt = now
		},
	},
	{
		// "Finished chapter 3"
		match: func(line string) bool { return strings.HasPrefix(line, "Finished chapter") },
		apply: func(p *Parser, line string, now time.Time) {
			p.enterPhase(PhaseCombining)
			p.chaptersCompleted++
			if p.totalChapters > 0 {
				p.setPercent(int(math.Round(float64(p.chaptersCompleted) / float64(p.totalChapters) * 50)))
			}
			p.message = line
			p.lastProgressAt = now
		},
	},
	{
		match: func(line string) bool { return strings.Contains(line, "Concatenating") },
		apply: func(p *Parser, line string, now time.Time) {
			p.enterPhase(PhaseCombining)
			p.setPercent(50)
			p.message = "Concatenating chapters"
			p.lastProgressAt = now
		},
	},
	{
		match: func(line string) bool { return strings.Contains(line, "Writing concat list") },
		apply: func(p *Parser, line string, now time.Time) {
			p.setPercent(52)
			p.message = "Concatenating chapters"
			p.lastProgressAt = now
		},
	},
	{
		match: func(line string) bool { return strings.Contains(line, "Merging audio") },
		apply: func(p *Parser, line string, now time.Time) {
			p.setPercent(55)
			p.message = "Merging audio streams"
			p.lastProgressAt = now
		},
	},
	{
		match: func(line string) bool { return strings.Contains(line, "Normalizing loudness") },
		apply: func(p *Parser, line string, now time.Time) {
			p.setPercent(60)
			p.message = "Normalizing loudness"
			p.lastProgressAt = now
		},
	},
	{
		match: func(line string) bool { return strings.Contains(line, "Encoding AAC") },
		apply: func(p *Parser, line string, now time.Time) {
			p.enterPhase(PhaseEncoding)
			p.encodingStartedAt = now
			p.lastProgressAt = now
			p.message = "Encoding audio"
		},
	},
	{
		// Success JSON: {"status": "ok", "output_file": "/out/book.m4b"}
		match: func(line string) bool {
			return strings.HasPrefix(line, "{") && strings.Contains(line, "output_file")
		},
		apply: func(p *Parser, line string, now time.Time) {
			var payload struct {
				OutputFile string `json:"output_file"`
			}
			if err := json.Unmarshal([]byte(line), &payload); err == nil && payload.OutputFile != "" {
				p.outputPath = p.translate(payload.OutputFile)
			}
			p.enterPhase(PhaseMetadata)
			p.setPercent(95)
			p.message = "Finalizing audiobook"
			p.lastProgressAt = now
		},
	},
	{
		// "Audiobook saved to /out/book.m4b"
		match: func(line string) bool { return strings.Contains(line, "saved to ") },
		apply: func(p *Parser, line string, now time.Time) {
			if idx := strings.LastIndex(line, "saved to "); idx >= 0 {
				if path := strings.TrimSpace(line[idx+len("saved to "):]); path != "" {
					p.outputPath = p.translate(path)
				}
			}
			p.enterPhase(PhaseMetadata)
			p.setPercent(95)
			p.message = "Finalizing audiobook"
			p.lastProgressAt = now
		},
	},
	{
		match: func(line string) bool { return strings.Contains(line, "Adding cover") },
		apply: func(p *Parser, line string, now time.Time) {
			p.enterPhase(PhaseMetadata)
			p.setPercent(90)
			p.message = "Adding cover image"
			p.lastProgressAt = now
		},
	},
	{
		match: func(line string) bool { return strings.Contains(line, "Writing VTT") },
		apply: func(p *Parser, line string, now time.Time) {
			p.enterPhase(PhaseMetadata)
			p.setPercent(92)
			p.message = "Writing subtitles"
			p.lastProgressAt = now
		},
	},
	{
		match: func(line string) bool { return strings.Contains(line, "chapter markers") },
		apply: func(p *Parser, line string, now time.Time) {
			p.enterPhase(PhaseMetadata)
			p.setPercent(94)
			p.message = "Writing chapter markers"
			p.lastProgressAt = now
		},
	},
}

// firstInt returns the first decimal integer in line.
func firstInt(line string) (int, bool) {
	start := -1
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(line[start:i])
			return n, err == nil
		}
	}
	if start >= 0 {
		n, err := strconv.Atoi(line[start:])
		return n, err == nil
	}
	return 0, false
}

// intAfter returns the integer immediately following sep in line.
func intAfter(line, sep string) (int, bool) {
	idx := strings.Index(line, sep)
	if idx < 0 {
		return 0, false
	}
	return firstInt(line[idx+len(sep):])
}
