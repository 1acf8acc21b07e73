package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"bookforge/internal/api"
	"bookforge/internal/config"
	"bookforge/internal/jobstore"
	"bookforge/internal/logging"
	"bookforge/internal/metatag"
	"bookforge/internal/reassembly"
	"bookforge/internal/session"
	"bookforge/internal/staging"
)

// sweepInterval is how often abandoned staging directories are swept.
const sweepInterval = time.Hour

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *session.Store
	records  *jobstore.Store
	orch     *reassembly.Orchestrator
	hub      *api.Hub
	server   *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	records, err := jobstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	sessions := session.NewStore(cfg.Paths.SessionDir, cfg.Paths.ProjectDirs, logger)
	hub := api.NewHub()
	orch := reassembly.New(cfg, sessions, logger,
		reassembly.WithRecorder(records),
		reassembly.WithTagger(metatag.New(cfg.Metadata, logger)),
		reassembly.WithSink(hub))

	lockPath := filepath.Join(cfg.Paths.LogDir, "bookforged.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		sessions: sessions,
		records:  records,
		orch:     orch,
		hub:      hub,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = api.NewServer(cfg, sessions, orch, records, hub, d.status, logger)
	return d, nil
}

// Orchestrator exposes the job orchestrator, for embedding callers.
func (d *Daemon) Orchestrator() *reassembly.Orchestrator { return d.orch }

// Start acquires the daemon lock and launches the API server and the
// staging sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another bookforge daemon instance is already running")
	}

	// Rows still marked running belong to a previous process.
	if interrupted, err := d.records.MarkInterrupted(ctx); err != nil {
		d.logger.Warn("mark interrupted jobs", logging.Error(err))
	} else if interrupted > 0 {
		d.logger.Info("marked interrupted jobs from previous run",
			logging.Int64("count", interrupted))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.server.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.done = make(chan struct{})
	go d.sweepLoop()

	d.running.Store(true)
	d.logger.Info("bookforge daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels running jobs, stops the API server, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.orch.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("orchestrator shutdown", logging.Error(err))
	}
	d.server.Stop()
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("bookforge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.records != nil {
		return d.records.Close()
	}
	return nil
}

// sweepLoop periodically removes staging directories abandoned by crashed
// runs. Directories belonging to live jobs are always skipped.
func (d *Daemon) sweepLoop() {
	defer close(d.done)
	maxAge := time.Duration(d.cfg.Staging.StaleMaxAgeHours) * time.Hour

	d.sweep(maxAge)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.sweep(maxAge)
		}
	}
}

func (d *Daemon) sweep(maxAge time.Duration) {
	result := staging.CleanStale(d.cfg.Paths.OutputDir, maxAge, d.orch.ActiveSet(), d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("removed stale staging directories",
			logging.Int("count", len(result.Removed)))
	}
}

func (d *Daemon) status() api.DaemonStatus {
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		SessionRoot:  d.cfg.Paths.SessionDir,
		OutputDir:    d.cfg.Paths.OutputDir,
		LockFilePath: d.lockPath,
	}
}
