/**
 * @description
 * The settlement engine core. One cycle runs three sweeps in a fixed order:
 *
 *   1. attribution  - pull recent transfers to the deposit address and match
 *                     them to open payment intents
 *   2. activation   - move funded subscriptions out of pending_activation
 *                     once the dwell time has elapsed
 *   3. settlement   - apply the daily credit to active subscriptions
 *
 * The ordering matters only within a tick: a transfer attributed now cannot
 * activate before a later tick anyway (24h dwell), but running the sweeps in
 * sequence keeps each one working off a snapshot the previous one produced.
 *
 * A single mutex serializes cycles. The timer path uses TryLock and skips the
 * tick if a cycle is still in flight; a forced run waits for the lock instead.
 * All durable state lives in the database and every decision is recomputed
 * from it each cycle, so replaying a cycle is always safe.
 */
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/config"
	"github.com/stablevest/settlement-engine/internal/domain"
	"github.com/stablevest/settlement-engine/internal/store"
)

// ChainClient defines the read-only view of the blockchain the engine needs.
type ChainClient interface {
	ListIncomingTransfers(ctx context.Context, address string, maxAge time.Duration) ([]domain.TokenTransfer, error)
	GetTransfer(ctx context.Context, txHash string) (*domain.TokenTransfer, error)
}

// Notifier delivers fire-and-forget settlement events. Implementations must
// never let a delivery failure surface to the caller.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, payload interface{})
}

// Engine drives the three settlement sweeps.
type Engine struct {
	repo     store.Repository
	chain    ChainClient
	notifier Notifier
	catalog  *domain.PlanCatalog
	logger   *slog.Logger
	config   config.Config

	runMu sync.Mutex
	now   func() time.Time
}

// NewEngine creates a settlement engine.
func NewEngine(repo store.Repository, chain ChainClient, notifier Notifier, catalog *domain.PlanCatalog, logger *slog.Logger, cfg config.Config) *Engine {
	return &Engine{
		repo:     repo,
		chain:    chain,
		notifier: notifier,
		catalog:  catalog,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// CycleResult aggregates the outcome of one full sweep cycle.
type CycleResult struct {
	StartedAt   time.Time         `json:"started_at"`
	Duration    time.Duration     `json:"duration"`
	Attribution AttributionResult `json:"attribution"`
	Activation  ActivationResult  `json:"activation"`
	Settlement  SettlementResult  `json:"settlement"`
}

// RunCycle executes one full cycle, waiting for any in-flight cycle to finish
// first. This is the forced-run entry point for operators and tests.
func (e *Engine) RunCycle(ctx context.Context) CycleResult {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.runCycleLocked(ctx)
}

// TryRunCycle executes one full cycle unless another is already in flight, in
// which case it reports false. This is the timer-tick entry point: a
// long-running cycle suppresses the next scheduled tick rather than running
// concurrently with it.
func (e *Engine) TryRunCycle(ctx context.Context) (CycleResult, bool) {
	if !e.runMu.TryLock() {
		return CycleResult{}, false
	}
	defer e.runMu.Unlock()
	return e.runCycleLocked(ctx), true
}

func (e *Engine) runCycleLocked(ctx context.Context) CycleResult {
	started := e.now()
	result := CycleResult{StartedAt: started}

	result.Attribution = e.runAttributionSweep(ctx)
	result.Activation = e.runActivationSweep(ctx)
	result.Settlement = e.runSettlementSweep(ctx)

	result.Duration = e.now().Sub(started)
	e.logger.Info("settlement cycle finished",
		"duration", result.Duration,
		"transfers_evaluated", result.Attribution.Evaluated,
		"transfers_matched", result.Attribution.Matched,
		"subscriptions_activated", result.Activation.Activated,
		"subscriptions_credited", result.Settlement.Credited,
		"subscriptions_completed", result.Settlement.Completed,
		"failures", result.Attribution.Failed+result.Activation.Failed+result.Settlement.Failed,
	)
	return result
}

func (e *Engine) notify(ctx context.Context, userID uuid.UUID, eventType string, payload interface{}) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, userID, eventType, payload)
}
