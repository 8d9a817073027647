package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/domain"
)

func newTestScheduler(engine *Engine) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(engine, logger, testConfig())
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	engine := newTestEngine(newMemRepo(), &chainStub{}, &notifierStub{})
	s := newTestScheduler(engine)
	defer s.Stop()

	if s.IsRunning() {
		t.Fatal("scheduler must not be running before Start")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start must be a no-op, got error: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("scheduler must report running after Start")
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	engine := newTestEngine(newMemRepo(), &chainStub{}, &notifierStub{})
	s := newTestScheduler(engine)

	// Stop before Start is a no-op.
	<-s.Stop().Done()

	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-s.Stop().Done()
	if s.IsRunning() {
		t.Fatal("scheduler must not report running after Stop")
	}
	<-s.Stop().Done()
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	engine := newTestEngine(newMemRepo(), &chainStub{}, &notifierStub{})
	s := newTestScheduler(engine)

	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-s.Stop().Done()
	if err := s.Start(); err != nil {
		t.Fatalf("Start after Stop returned error: %v", err)
	}
	defer s.Stop()
	if !s.IsRunning() {
		t.Fatal("scheduler must be running after restart")
	}
}

func TestScheduler_ForceRunExecutesFullCycle(t *testing.T) {
	repo := newMemRepo()
	addIntent(repo, uuid.New(), "starter", 10_000, t0)
	chain := &chainStub{transfers: []domain.TokenTransfer{
		transferAt("tx-1", 10_000, t0.Add(5*time.Minute)),
	}}
	engine := newTestEngine(repo, chain, &notifierStub{})
	setEngineTime(engine, t0.Add(10*time.Minute))

	s := newTestScheduler(engine)
	// ForceRun works without the timer being started.
	result := s.ForceRun(context.Background())

	if result.Attribution.Matched != 1 {
		t.Fatalf("expected forced cycle to attribute the transfer, got %+v", result.Attribution)
	}
	if len(repo.subs) != 1 {
		t.Fatalf("expected 1 subscription after forced cycle, got %d", len(repo.subs))
	}
}

func TestEngine_TickSkippedWhileCycleInFlight(t *testing.T) {
	engine := newTestEngine(newMemRepo(), &chainStub{}, &notifierStub{})

	// Hold the run lock as a cycle in flight would.
	engine.runMu.Lock()
	var wg sync.WaitGroup
	wg.Add(1)
	var ran bool
	go func() {
		defer wg.Done()
		_, ran = engine.TryRunCycle(context.Background())
	}()
	wg.Wait()
	engine.runMu.Unlock()

	if ran {
		t.Fatal("TryRunCycle must refuse to run while another cycle holds the lock")
	}

	// Once the lock is free the next tick runs.
	if _, ok := engine.TryRunCycle(context.Background()); !ok {
		t.Fatal("TryRunCycle must run when no cycle is in flight")
	}
}
