package reassembly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bookforge/internal/config"
	"bookforge/internal/fileutil"
	"bookforge/internal/jobstore"
	"bookforge/internal/logging"
	"bookforge/internal/metatag"
	"bookforge/internal/progress"
	"bookforge/internal/services"
	"bookforge/internal/session"
	"bookforge/internal/staging"
)

// containerExtensions are the audiobook container types the engine may
// produce, used when scanning staging for an unreported output file.
var containerExtensions = map[string]struct{}{
	".m4b": {},
	".m4a": {},
	".mp3": {},
}

// sidecarExtension is the subtitle sidecar produced alongside the container.
const sidecarExtension = ".vtt"

// Recorder persists job history. *jobstore.Store satisfies it.
type Recorder interface {
	Create(ctx context.Context, jobID, sessionID string) (*jobstore.Job, error)
	UpdateProgress(ctx context.Context, jobID, phase string, percentage int) error
	Finish(ctx context.Context, jobID string, status jobstore.Status, outputPath, errMessage string) error
}

// Tagger applies metadata tags to a finished container. *metatag.Applier
// satisfies it.
type Tagger interface {
	Apply(ctx context.Context, outputPath string, tags metatag.Tags) error
}

// Request describes one reassembly job.
type Request struct {
	SessionID string
	// OutputDir overrides the configured output directory when non-empty.
	OutputDir string
	// Metadata overrides are merged into the session state before launch so
	// the engine and the tagging step both observe them.
	Metadata session.ExtendedMetadata
	Cover    *session.CoverInput
	// Sink receives this job's progress events in addition to the
	// orchestrator-wide sink.
	Sink progress.Sink
}

// job is the runtime aggregate for one live reassembly run.
type job struct {
	id           string
	sessionID    string
	outputDir    string
	stagingDir   string
	outputBase   string
	tags         metatag.Tags
	parser       *progress.Parser
	handle       Handle
	tail         *tailBuffer
	extraSink    progress.Sink
	stop         chan struct{}
	stopOnce     sync.Once
	lastOutputNs atomic.Int64
	terminalOnce sync.Once
}

func (j *job) markStopped() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *job) touch() {
	j.lastOutputNs.Store(time.Now().UnixNano())
}

func (j *job) sinceOutput() time.Duration {
	return time.Since(time.Unix(0, j.lastOutputNs.Load()))
}

// Orchestrator manages the lifecycle of reassembly jobs.
type Orchestrator struct {
	cfg      *config.Config
	sessions *session.Store
	records  Recorder
	tagger   Tagger
	exec     Executor
	sink     progress.Sink
	logger   *slog.Logger
	registry *registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithExecutor injects a custom process executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(o *Orchestrator) {
		if exec != nil {
			o.exec = exec
		}
	}
}

// WithRecorder wires job-history persistence.
func WithRecorder(records Recorder) Option {
	return func(o *Orchestrator) { o.records = records }
}

// WithTagger wires the metadata tagging step.
func WithTagger(tagger Tagger) Option {
	return func(o *Orchestrator) { o.tagger = tagger }
}

// WithSink sets the orchestrator-wide progress sink.
func WithSink(sink progress.Sink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// New constructs an orchestrator. Jobs run under the orchestrator's own
// lifetime, not the lifetime of the request that started them.
func New(cfg *config.Config, sessions *session.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      cfg,
		sessions: sessions,
		exec:     NewExecutor(),
		sink:     progress.SinkFunc(func(progress.Event) {}),
		logger:   logging.NewComponentLogger(logger, "reassembly"),
		registry: newRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Active returns the ids of currently running jobs.
func (o *Orchestrator) Active() []string { return o.registry.ids() }

// ActiveSet returns running job ids as a set, for the staging sweeper.
func (o *Orchestrator) ActiveSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, id := range o.registry.ids() {
		set[id] = struct{}{}
	}
	return set
}

// Start validates the request, prepares staging, and launches the engine.
// It returns as soon as the process is running; progress and the terminal
// outcome are delivered through the sinks.
func (o *Orchestrator) Start(req Request) (string, error) {
	if o.registry.count() >= o.cfg.Engine.MaxConcurrentJobs {
		return "", services.Wrap(services.ErrValidation, "preparing", "start",
			fmt.Sprintf("concurrent job limit reached (%d)", o.cfg.Engine.MaxConcurrentJobs), nil)
	}

	sess, err := o.sessions.Get(req.SessionID)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "preparing", "start", "load session", err)
	}
	if sess == nil {
		return "", services.Wrap(services.ErrNotFound, "preparing", "start",
			fmt.Sprintf("session %s not found", req.SessionID), nil)
	}
	if sess.CompletedSentences == 0 {
		return "", services.Wrap(services.ErrValidation, "preparing", "start",
			"session has no rendered audio fragments", nil)
	}

	// Persist user overrides into the session state first so the engine and
	// the tagging step both observe them.
	if req.Cover != nil || hasOverrides(req.Metadata) {
		if err := o.sessions.SaveMetadata(req.SessionID, req.Metadata, req.Cover); err != nil {
			return "", services.Wrap(services.ErrValidation, "preparing", "start", "apply metadata overrides", err)
		}
		if sess, err = o.sessions.Get(req.SessionID); err != nil || sess == nil {
			return "", services.Wrap(services.ErrExternalTool, "preparing", "start", "reload session", err)
		}
	}

	outputDir := strings.TrimSpace(req.OutputDir)
	if outputDir == "" {
		outputDir = o.cfg.Paths.OutputDir
	}
	jobID := uuid.NewString()

	stagingDir, err := staging.Create(outputDir, jobID)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "preparing", "start", "create staging directory", err)
	}

	language := session.NormalizeLanguage(sess.Metadata.Language)
	spec, translate := engineCommand(o.cfg.Engine, sess, stagingDir, language)

	j := &job{
		id:         jobID,
		sessionID:  sess.SessionID,
		outputDir:  outputDir,
		stagingDir: stagingDir,
		outputBase: outputBaseName(sess),
		tags:       tagsFor(sess),
		tail:       newTailBuffer(stderrTailLimit),
		extraSink:  req.Sink,
		stop:       make(chan struct{}),
	}
	j.touch()
	j.parser = progress.NewParser(progress.Config{
		JobID:          jobID,
		Sink:           progress.SinkFunc(func(event progress.Event) { o.forward(j, event) }),
		StdoutInterval: time.Duration(o.cfg.Progress.StdoutThrottleMillis) * time.Millisecond,
		StderrInterval: time.Duration(o.cfg.Progress.StderrThrottleMillis) * time.Millisecond,
		TotalChapters:  activeChapterCount(sess),
		TranslatePath:  translate,
	})

	if o.records != nil {
		if _, err := o.records.Create(o.ctx, jobID, sess.SessionID); err != nil {
			_ = staging.Discard(stagingDir)
			return "", services.Wrap(services.ErrConfiguration, "preparing", "start", "record job", err)
		}
	}

	handle, err := o.exec.Start(o.ctx, spec,
		func(chunk []byte) { j.touch(); j.parser.FeedStdout(chunk) },
		func(chunk []byte) { j.touch(); j.tail.Write(chunk); j.parser.FeedStderr(chunk) },
	)
	if err != nil {
		_ = staging.Discard(stagingDir)
		o.finishRecord(jobID, jobstore.StatusFailed, "", err.Error())
		o.emitTerminal(j, progress.Event{
			JobID:   jobID,
			Phase:   progress.PhaseError,
			Message: "Failed to start assembly engine",
			Error:   err.Error(),
		})
		return jobID, services.Wrap(services.ErrExternalTool, "preparing", "start", "spawn engine", err)
	}
	j.handle = handle

	o.registry.add(j)
	o.logger.Info("job started",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldSessionID, sess.SessionID),
		logging.String("binary", spec.Binary))

	o.wg.Add(1)
	go o.supervise(j)
	return jobID, nil
}

// supervise owns the job's single heartbeat timer and waits for process
// exit. The stall check uses raw output activity, not parser events, so the
// heartbeat's own synthetic events never mask a wedged engine.
func (o *Orchestrator) supervise(j *job) {
	defer o.wg.Done()

	exitCh := make(chan error, 1)
	go func() { exitCh <- j.handle.Wait() }()

	interval := time.Duration(o.cfg.Progress.HeartbeatSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	stallTimeout := time.Duration(o.cfg.Engine.StallTimeoutSecs) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case exitErr := <-exitCh:
			o.handleExit(j.id, exitErr)
			return
		case <-j.stop:
			// Cancelled: keep draining until the process exits so it is
			// reaped; the exit is then discarded as a ghost.
			exitErr := <-exitCh
			o.handleExit(j.id, exitErr)
			return
		case <-ticker.C:
			j.parser.Heartbeat()
			if stallTimeout > 0 && j.sinceOutput() > stallTimeout {
				o.failStalled(j.id, stallTimeout)
			}
		}
	}
}

// handleExit resolves a process exit. Removal from the registry decides
// ownership: a job already removed (cancelled or stalled) is a ghost exit
// and is discarded without any user-visible effect.
func (o *Orchestrator) handleExit(jobID string, exitErr error) {
	j, ok := o.registry.remove(jobID)
	if !ok {
		o.logger.Debug("ghost exit discarded", logging.String(logging.FieldJobID, jobID))
		return
	}
	// Flush before markStopped: the final parked progress must still reach
	// the sinks, while anything after the stop channel closes is dropped.
	j.parser.Flush()
	j.markStopped()

	if exitErr != nil {
		message := strings.TrimSpace(j.tail.String())
		if message == "" {
			message = exitErr.Error()
		}
		o.failJob(j, message)
		return
	}
	o.commit(j)
}

// commit finalizes a successful run: locate the container, apply the user's
// filename, line up the subtitle sidecar, tag metadata, then atomically move
// everything from staging into the output directory.
func (o *Orchestrator) commit(j *job) {
	container, err := o.locateContainer(j)
	if err != nil {
		o.failJob(j, err.Error())
		return
	}

	finalName := j.outputBase + filepath.Ext(container)
	if filepath.Base(container) != finalName {
		renamed := filepath.Join(j.stagingDir, finalName)
		if err := os.Rename(container, renamed); err != nil {
			o.failJob(j, fmt.Sprintf("rename output container: %v", err))
			return
		}
		container = renamed
	}
	o.renameSidecar(j)

	if o.tagger != nil {
		tagCtx := services.WithJobID(services.WithSessionID(o.ctx, j.sessionID), j.id)
		if err := o.tagger.Apply(tagCtx, container, j.tags); err != nil {
			if services.IsCancellation(err) {
				o.failCancelled(j)
				return
			}
			// Tagging is cosmetic; the job still succeeds.
			o.logger.Warn("metadata tagging failed",
				logging.String(logging.FieldJobID, j.id),
				logging.Error(err))
		}
	}

	if err := staging.Commit(j.stagingDir, j.outputDir); err != nil {
		o.failJob(j, fmt.Sprintf("commit output: %v", err))
		return
	}

	finalPath := filepath.Join(j.outputDir, finalName)
	o.finishRecord(j.id, jobstore.StatusCompleted, finalPath, "")
	o.logger.Info("job completed",
		logging.String(logging.FieldJobID, j.id),
		logging.String("output", finalPath))
	o.emitTerminal(j, progress.Event{
		JobID:      j.id,
		Phase:      progress.PhaseComplete,
		Percentage: 100,
		Message:    fmt.Sprintf("Audiobook saved to %s", finalPath),
	})
}

// locateContainer resolves the produced container inside staging, trusting
// the engine-reported path when it is usable and falling back to scanning
// staging for the newest container file.
func (o *Orchestrator) locateContainer(j *job) (string, error) {
	if reported := j.parser.OutputPath(); reported != "" {
		if filepath.Dir(reported) == j.stagingDir {
			if _, err := os.Stat(reported); err == nil {
				return reported, nil
			}
		} else if _, err := os.Stat(reported); err == nil {
			// Engine wrote outside staging; pull the file in so the commit
			// stays a same-filesystem rename from the caller's viewpoint.
			pulled := filepath.Join(j.stagingDir, filepath.Base(reported))
			if err := fileutil.MoveFile(reported, pulled); err == nil {
				return pulled, nil
			}
		}
	}

	entries, err := os.ReadDir(j.stagingDir)
	if err != nil {
		return "", fmt.Errorf("scan staging: %w", err)
	}
	var (
		newest     string
		newestTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := containerExtensions[ext]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(j.stagingDir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("engine exited cleanly but produced no output container")
	}
	return newest, nil
}

// renameSidecar lines the subtitle file up with the container's final name.
func (o *Orchestrator) renameSidecar(j *job) {
	entries, err := os.ReadDir(j.stagingDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), sidecarExtension) {
			continue
		}
		target := j.outputBase + sidecarExtension
		if entry.Name() == target {
			return
		}
		_ = os.Rename(filepath.Join(j.stagingDir, entry.Name()), filepath.Join(j.stagingDir, target))
		return
	}
}

// Stop cancels a running job. The registry entry is removed before the
// process is signaled so a subsequently arriving exit event is recognized as
// a ghost. Returns false when no such job is live.
func (o *Orchestrator) Stop(jobID string) bool {
	j, ok := o.registry.remove(jobID)
	if !ok {
		return false
	}
	o.logger.Info("job cancelled", logging.String(logging.FieldJobID, jobID))
	j.markStopped()
	if j.handle != nil {
		_ = j.handle.Signal()
	}
	o.discardAndCancel(j)
	return true
}

func (o *Orchestrator) failStalled(jobID string, stallTimeout time.Duration) {
	j, ok := o.registry.remove(jobID)
	if !ok {
		return
	}
	o.logger.Warn("engine stalled",
		logging.String(logging.FieldJobID, jobID),
		logging.Duration("timeout", stallTimeout))
	j.markStopped()
	if j.handle != nil {
		_ = j.handle.Signal()
	}
	o.failJob(j, fmt.Sprintf("engine produced no output for %s", stallTimeout))
}

// failJob tears a job down as failed: staging discarded, error surfaced once.
func (o *Orchestrator) failJob(j *job, message string) {
	_ = staging.Discard(j.stagingDir)
	o.finishRecord(j.id, jobstore.StatusFailed, "", message)
	o.logger.Error("job failed",
		logging.String(logging.FieldJobID, j.id),
		logging.String("reason", message))
	o.emitTerminal(j, progress.Event{
		JobID:   j.id,
		Phase:   progress.PhaseError,
		Message: "Reassembly failed",
		Error:   message,
	})
}

func (o *Orchestrator) failCancelled(j *job) {
	o.discardAndCancel(j)
}

func (o *Orchestrator) discardAndCancel(j *job) {
	_ = staging.Discard(j.stagingDir)
	o.finishRecord(j.id, jobstore.StatusCancelled, "", "cancelled")
	o.emitTerminal(j, progress.Event{
		JobID:   j.id,
		Phase:   progress.PhaseError,
		Message: "Job cancelled",
		Error:   "cancelled",
	})
}

// Shutdown cancels all running jobs and waits for their teardown, bounded
// by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	for _, id := range o.registry.ids() {
		o.Stop(id)
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forward delivers one parser event to the sinks and the job record. Events
// from a stopped job are dropped: a cancelled process keeps producing output
// until it dies, and nothing may follow the terminal event.
func (o *Orchestrator) forward(j *job, event progress.Event) {
	select {
	case <-j.stop:
		return
	default:
	}
	o.sink.OnProgress(event)
	if j.extraSink != nil {
		j.extraSink.OnProgress(event)
	}
	if o.records != nil {
		_ = o.records.UpdateProgress(o.ctx, j.id, string(event.Phase), event.Percentage)
	}
}

// emitTerminal delivers a job's terminal event at most once.
func (o *Orchestrator) emitTerminal(j *job, event progress.Event) {
	j.terminalOnce.Do(func() {
		o.sink.OnProgress(event)
		if j.extraSink != nil {
			j.extraSink.OnProgress(event)
		}
	})
}

func (o *Orchestrator) finishRecord(jobID string, status jobstore.Status, outputPath, errMessage string) {
	if o.records == nil {
		return
	}
	if err := o.records.Finish(o.ctx, jobID, status, outputPath, errMessage); err != nil {
		o.logger.Warn("record job outcome",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
	}
}

// outputBaseName picks the container's final base name: the user's requested
// filename, else the book title, else the session id, sanitized either way.
func outputBaseName(sess *session.Session) string {
	name := strings.TrimSpace(sess.Metadata.OutputFilename)
	if name == "" {
		name = strings.TrimSpace(sess.Metadata.Title)
	}
	if name == "" {
		name = sess.SessionID
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return fileutil.SanitizeFileName(name)
}

func hasOverrides(meta session.ExtendedMetadata) bool {
	if len(meta.ExcludedChapters) > 0 {
		return true
	}
	for _, field := range []string{
		meta.Title, meta.Author, meta.Language, meta.Year, meta.Narrator,
		meta.Series, meta.SeriesNumber, meta.Genre, meta.Description,
		meta.OutputFilename, meta.CoverPath,
	} {
		if strings.TrimSpace(field) != "" {
			return true
		}
	}
	return false
}

func activeChapterCount(sess *session.Session) int {
	count := 0
	for _, chapter := range sess.Chapters {
		if !chapter.Excluded {
			count++
		}
	}
	return count
}

func tagsFor(sess *session.Session) metatag.Tags {
	meta := sess.Metadata
	return metatag.Tags{
		Title:        meta.Title,
		Author:       meta.Author,
		Narrator:     meta.Narrator,
		Series:       meta.Series,
		SeriesNumber: meta.SeriesNumber,
		Genre:        meta.Genre,
		Year:         meta.Year,
		Description:  meta.Description,
		CoverPath:    meta.CoverPath,
	}
}
