package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/formsync/formsync/internal/domain"
	"github.com/formsync/formsync/internal/normalize"
)

// stopTimeout bounds how long Stop waits for an in-flight pass. A pass held
// up longer than this is abandoned to its own devices rather than blocking
// shutdown forever.
const stopTimeout = 30 * time.Second

// Engine is the slice of the normalizer the scheduler drives.
type Engine interface {
	NormalizeTable(ctx context.Context, tableID string, mode normalize.Mode) (normalize.Stats, error)
}

// Stats are the running counters published by the scheduler. They are copied
// out under the scheduler's lock, so external status readers never race a
// tick.
type Stats struct {
	TotalSyncs      int
	SuccessfulSyncs int
	FailedSyncs     int
	LastSyncTime    time.Time
	LastError       string
}

// Result is what one pass over the diff produced.
type Result struct {
	SyncedCount int
	FailedCount int
	Errors      []string
}

// Status is the scheduler's externally visible state.
type Status struct {
	Running  bool
	LastTick time.Time
	Stats    Stats
}

// Scheduler periodically diffs the raw store and normalizes every table the
// diff flags. Exactly one pass runs at a time: timer ticks and ForceSync
// serialize on the same mutex, so a forced run waits for an in-flight tick
// instead of overlapping it.
type Scheduler struct {
	tracker *Tracker
	engine  Engine
	logger  *logrus.Logger

	runMu gosync.Mutex // held for the duration of one pass

	mu       gosync.Mutex // guards the fields below
	running  bool
	stop     chan struct{}
	done     chan struct{}
	lastTick time.Time
	stats    Stats
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(tracker *Tracker, engine Engine, logger *logrus.Logger) *Scheduler {
	return &Scheduler{tracker: tracker, engine: engine, logger: logger}
}

// Start launches the background worker. Calling Start on a running scheduler
// is a no-op with a logged warning.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("scheduler already running, Start ignored")
		return
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(interval, s.stop, s.done)

	s.logger.WithField("interval", interval).Info("auto-sync started")
}

// Stop signals the worker and waits, up to stopTimeout, for any in-flight
// pass to finish. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info("auto-sync stopped")
	case <-time.After(stopTimeout):
		s.logger.Warn("auto-sync stop timed out waiting for in-flight pass")
	}
}

// ForceSync runs one pass synchronously on the caller's goroutine,
// independent of the timer.
func (s *Scheduler) ForceSync(ctx context.Context) Result {
	return s.runPass(ctx)
}

// Status returns a snapshot of the scheduler's state and counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Running: s.running, LastTick: s.lastTick, Stats: s.stats}
}

func (s *Scheduler) loop(interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.runPass(context.Background())
		}
	}
}

// runPass executes one full diff-and-normalize pass. A tick failure is
// recorded, never fatal; the next tick runs on schedule regardless.
func (s *Scheduler) runPass(ctx context.Context) Result {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runID := uuid.NewString()
	logger := s.logger.WithField("run_id", runID)
	started := time.Now()

	var result Result
	diff, err := s.tracker.Diff(ctx)
	if err != nil {
		logger.WithError(err).Error("sync pass failed to diff")
		result.Errors = append(result.Errors, err.Error())
		s.recordPass(started, result)
		return result
	}

	for _, tab := range diff.New {
		s.syncTable(ctx, logger, tab, normalize.ModeFullImport, &result)
	}
	for _, tab := range diff.Updated {
		s.syncTable(ctx, logger, tab, normalize.ModeIncrementalReplace, &result)
	}

	logger.WithFields(logrus.Fields{
		"synced":   result.SyncedCount,
		"failed":   result.FailedCount,
		"duration": time.Since(started),
	}).Info("sync pass finished")
	s.recordPass(started, result)
	return result
}

// syncTable normalizes one table and records the outcome either way. One
// table's failure never aborts its siblings in the same pass.
func (s *Scheduler) syncTable(ctx context.Context, logger *logrus.Entry, tab domain.SourceTable, mode normalize.Mode, result *Result) {
	// Mark the table pending first, so an interrupted run diffs as updated
	// next time instead of unchanged.
	if err := s.tracker.RecordOutcome(ctx, tab, domain.SyncPending); err != nil {
		logger.WithError(err).WithField("table_id", tab.ID).Error("failed to mark table pending")
	}

	_, err := s.engine.NormalizeTable(ctx, tab.ID, mode)
	if err != nil {
		logger.WithError(err).WithField("table_id", tab.ID).Error("table sync failed")
		result.FailedCount++
		result.Errors = append(result.Errors, fmt.Sprintf("table %s: %v", tab.ID, err))
		if recErr := s.tracker.RecordOutcome(ctx, tab, domain.SyncFailed); recErr != nil {
			logger.WithError(recErr).WithField("table_id", tab.ID).Error("failed to record sync outcome")
		}
		return
	}

	result.SyncedCount++
	if recErr := s.tracker.RecordOutcome(ctx, tab, domain.SyncCompleted); recErr != nil {
		logger.WithError(recErr).WithField("table_id", tab.ID).Error("failed to record sync outcome")
	}
}

func (s *Scheduler) recordPass(started time.Time, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTick = started
	s.stats.TotalSyncs++
	s.stats.LastSyncTime = started
	if result.FailedCount > 0 || len(result.Errors) > 0 {
		s.stats.FailedSyncs++
		s.stats.LastError = result.Errors[len(result.Errors)-1]
	} else {
		s.stats.SuccessfulSyncs++
	}
}
