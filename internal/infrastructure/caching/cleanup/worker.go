package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/stores"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
)

// Worker sweeps the filesystem cache tier on a fixed interval. Exactly one
// worker should run per cache base directory; a second worker on the same
// tree wastes stat calls but is otherwise harmless.
type Worker struct {
	store    *stores.FilesystemStore
	cfg      Config
	reporter *Reporter
	logger   *logging.ChanneledLogger

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewWorker creates a sweep worker over the given filesystem tier
func NewWorker(store *stores.FilesystemStore, cfg Config, reporter *Reporter, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		store:    store,
		cfg:      cfg,
		reporter: reporter,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. No-op when already started, when the store
// is absent, or when the interval is zero.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	if w.store == nil || w.cfg.Interval <= 0 {
		close(w.done)
		return
	}
	if w.logger != nil {
		w.logger.Cleanup().Info("Starting cache cleanup worker",
			"base", w.store.Base(),
			"interval", w.cfg.Interval.String())
	}
	go w.loop()
}

func (w *Worker) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single sweep and records it. Also invoked directly by
// the admin cleanup endpoint.
func (w *Worker) RunOnce(ctx context.Context) RunRecord {
	run := RunRecord{
		RunID:     w.reporter.NewRunID(),
		StartedAt: time.Now(),
	}

	run.Report = w.store.Sweep(ctx)
	run.Duration = time.Since(run.StartedAt)
	run.Interrupted = ctx.Err() != nil

	w.reporter.Record(run)

	if w.logger != nil && (w.cfg.Verbose || run.Report.Deleted > 0 || run.Report.Errors > 0) {
		w.logger.Cleanup().Info("Cache sweep complete",
			"runId", run.RunID,
			"scanned", run.Report.Scanned,
			"deleted", run.Report.Deleted,
			"errors", run.Report.Errors,
			"duration", run.Duration.String())
	}

	return run
}

// Stop halts the loop and waits for the in-flight sweep to finish. Safe to
// call whether or not Start ever ran.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return
	}
	<-w.done
}
