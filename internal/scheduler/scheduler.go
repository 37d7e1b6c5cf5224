// Package scheduler drives background polling of remote file endpoints.
//
// The Scheduler runs as a background worker that periodically lists the
// enabled poll targets and runs each one that is due. Targets run
// concurrently up to a configured limit; each run owns its own remote
// connection (the poller itself is strictly sequential within a run).
//
// # Watermark Persistence
//
// The poller never mutates its config. After a run with zero processing
// errors the scheduler persists the recommended watermark as the target's
// new LastPollTime; runs with any per-file error leave the watermark
// untouched so the affected files are retried next time.
//
// # Execution Ledger
//
// Every run is recorded against a fresh execution id: started when the
// run begins, then succeeded or failed. Partial failures (some files
// errored) are recorded as failures with the full three-bucket result
// attached for operator visibility.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edilane/go-x12/internal/storage"
	"github.com/edilane/go-x12/pkg/poller"
)

// ErrPollIncomplete marks a run that processed some files but not all.
var ErrPollIncomplete = errors.New("poll completed with processing errors")

// Scheduler polls all enabled targets on their configured intervals.
type Scheduler struct {
	store  storage.Store
	poller *poller.Poller
	logger *slog.Logger

	tickInterval  time.Duration
	maxConcurrent int

	// lastRun is only touched from the scheduling loop.
	lastRun map[string]time.Time

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds scheduler configuration
type Config struct {
	TickInterval  time.Duration
	MaxConcurrent int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		TickInterval:  30 * time.Second,
		MaxConcurrent: 4,
	}
}

// New creates a new background poll scheduler
func New(store storage.Store, p *poller.Poller, cfg *Config, logger *slog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:         store,
		poller:        p,
		logger:        logger,
		tickInterval:  cfg.TickInterval,
		maxConcurrent: cfg.MaxConcurrent,
		lastRun:       make(map[string]time.Time),
	}
}

// Start begins background polling
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
	s.logger.Info("scheduler started", "tick_interval", s.tickInterval)
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pollDueTargets()
		}
	}
}

func (s *Scheduler) pollDueTargets() {
	targets, err := s.store.ListPollTargets(s.ctx)
	if err != nil {
		s.logger.Error("failed to list poll targets", "error", err)
		return
	}

	now := time.Now()
	g, ctx := errgroup.WithContext(s.ctx)
	g.SetLimit(s.maxConcurrent)

	for _, target := range targets {
		if now.Sub(s.lastRun[target.ID]) < target.Interval {
			continue
		}
		s.lastRun[target.ID] = now

		target := target
		g.Go(func() error {
			s.pollTarget(ctx, target)
			return nil
		})
	}

	// Errors are handled per target inside pollTarget.
	_ = g.Wait()
}

// RunOnce polls a single target immediately, outside its schedule.
func (s *Scheduler) RunOnce(ctx context.Context, target *storage.PollTarget) (*poller.Results, error) {
	return s.runPoll(ctx, target)
}

func (s *Scheduler) pollTarget(ctx context.Context, target *storage.PollTarget) {
	log := s.logger.With("target", target.Name, "target_id", target.ID)

	results, err := s.runPoll(ctx, target)
	if err != nil {
		log.Error("poll failed", "error", err)
		return
	}
	if !results.Clean() {
		log.Warn("poll completed with errors",
			"processed", len(results.ProcessedFiles),
			"errors", len(results.ProcessingErrors))
		return
	}
	log.Info("poll succeeded",
		"processed", len(results.ProcessedFiles),
		"skipped", len(results.SkippedItems))
}

// runPoll executes one poll run with ledger recording and conditional
// watermark advancement.
func (s *Scheduler) runPoll(ctx context.Context, target *storage.PollTarget) (*poller.Results, error) {
	executionID := uuid.NewString()
	log := s.logger.With("target", target.Name, "execution_id", executionID)

	if err := s.store.RecordStart(ctx, executionID, target.Poll); err != nil {
		log.Error("failed to record poll start", "error", err)
	}

	results, err := s.poller.Poll(ctx, target.Poll)
	if err != nil {
		if lerr := s.store.RecordFailure(ctx, executionID, err, nil); lerr != nil {
			log.Error("failed to record poll failure", "error", lerr)
		}
		return nil, err
	}

	if !results.Clean() {
		if lerr := s.store.RecordFailure(ctx, executionID, ErrPollIncomplete, results); lerr != nil {
			log.Error("failed to record poll failure", "error", lerr)
		}
		return results, nil
	}

	if err := s.store.UpdateWatermark(ctx, target.ID, results.RecommendedWatermark); err != nil {
		log.Error("failed to persist watermark", "error", err)
	}
	if err := s.store.RecordSuccess(ctx, executionID); err != nil {
		log.Error("failed to record poll success", "error", err)
	}
	return results, nil
}
