/**
 * @description
 * Cron scheduler that drives the settlement engine. One recurring job runs a
 * full sweep cycle on the configured schedule; operators can also force a
 * cycle outside the timer through the admin API.
 *
 * Start and Stop are idempotent, and the engine's own run lock guarantees at
 * most one cycle in flight: a tick that fires while the previous cycle is
 * still running is skipped, and a forced run waits its turn instead.
 */
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/stablevest/settlement-engine/internal/config"
)

// Scheduler manages the recurring settlement cycle.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	logger *slog.Logger
	config config.Config

	mu      sync.Mutex
	started bool
	entryID cron.EntryID
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(engine *Engine, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		engine: engine,
		logger: logger,
		config: cfg,
	}
}

// Start registers the settlement job and starts the cron timer. Calling Start
// while already started is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.config.SettlementJobSchedule, s.tick)
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", "schedule", s.config.SettlementJobSchedule)
	return nil
}

// Stop halts the timer. Any cycle already in flight is allowed to finish; the
// returned context is done once it has. Calling Stop while stopped is a no-op.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.cron.Remove(s.entryID)
	s.started = false
	s.logger.Info("scheduler stopped")
	return s.cron.Stop()
}

// IsRunning reports whether the timer is currently scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// ForceRun synchronously executes one full cycle outside the timer, waiting
// for any timer-driven cycle to finish first.
func (s *Scheduler) ForceRun(ctx context.Context) CycleResult {
	return s.engine.RunCycle(ctx)
}

// tick is the timer entry point.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.CycleTimeout())
	defer cancel()

	if _, ran := s.engine.TryRunCycle(ctx); !ran {
		s.logger.Warn("previous settlement cycle still running, skipping tick")
	}
}
