package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/domain"
)

// fundSubscription runs a full attribution pass so the repo holds a pending
// subscription with its funding ledger transaction, exactly as production
// would have written them.
func fundSubscription(t *testing.T, repo *memRepo, engine *Engine, createdAt time.Time) domain.Subscription {
	t.Helper()
	addIntent(repo, uuid.New(), "starter", 10_000, createdAt)
	chain := engine.chain.(*chainStub)
	chain.transfers = []domain.TokenTransfer{transferAt("tx-fund", 10_000, createdAt.Add(5*time.Minute))}

	setEngineTime(engine, createdAt.Add(10*time.Minute))
	if result := engine.runAttributionSweep(context.Background()); result.Matched != 1 {
		t.Fatalf("fixture attribution failed: %+v", result)
	}
	subs, _ := repo.GetPendingSubscriptions(context.Background())
	if len(subs) != 1 {
		t.Fatalf("expected 1 pending subscription, got %d", len(subs))
	}
	return subs[0]
}

func TestActivationSweep_HonorsDwellThenActivates(t *testing.T) {
	repo := newMemRepo()
	notifier := &notifierStub{}
	engine := newTestEngine(repo, &chainStub{}, notifier)
	sub := fundSubscription(t, repo, engine, t0)

	// 23 hours in: dwell not yet satisfied.
	setEngineTime(engine, sub.StartDate.Add(23*time.Hour))
	result := engine.runActivationSweep(context.Background())
	if result.Activated != 0 || result.StillPending != 1 {
		t.Fatalf("expected subscription still pending at 23h, got %+v", result)
	}

	// 25 hours in, funding ledger transaction present: activates.
	setEngineTime(engine, sub.StartDate.Add(25*time.Hour))
	result = engine.runActivationSweep(context.Background())
	if result.Activated != 1 {
		t.Fatalf("expected activation at 25h, got %+v", result)
	}
	if repo.subs[sub.ID].Status != domain.SubscriptionStatusActive {
		t.Errorf("expected active status, got %q", repo.subs[sub.ID].Status)
	}
	if notifier.count(domain.EventSubscriptionActivated) != 1 {
		t.Errorf("expected one subscription.activated event")
	}
}

func TestActivationSweep_NeverActivatesBeforeDwell(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(repo, &chainStub{}, &notifierStub{})
	sub := fundSubscription(t, repo, engine, t0)

	// Many ticks inside the dwell window never activate.
	for _, offset := range []time.Duration{time.Hour, 6 * time.Hour, 12 * time.Hour, 23*time.Hour + 59*time.Minute} {
		setEngineTime(engine, sub.StartDate.Add(offset))
		if result := engine.runActivationSweep(context.Background()); result.Activated != 0 {
			t.Fatalf("subscription activated %s after start, before dwell elapsed", offset)
		}
	}
}

func TestActivationSweep_RequiresFundingProof(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(repo, &chainStub{}, &notifierStub{})
	sub := fundSubscription(t, repo, engine, t0)

	// Simulate a funding write unit that never durably recorded its ledger
	// transaction.
	repo.ledger = nil

	setEngineTime(engine, sub.StartDate.Add(25*time.Hour))
	result := engine.runActivationSweep(context.Background())

	if result.Activated != 0 || result.StillPending != 1 {
		t.Fatalf("expected subscription left pending without funding proof, got %+v", result)
	}
	if repo.subs[sub.ID].Status != domain.SubscriptionStatusPendingActivation {
		t.Errorf("expected pending_activation, got %q", repo.subs[sub.ID].Status)
	}
}

func TestActivationSweep_FailureIsolatedPerSubscription(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(repo, &chainStub{}, &notifierStub{})
	sub := fundSubscription(t, repo, engine, t0)

	repo.failActivate = errStubFailure
	setEngineTime(engine, sub.StartDate.Add(25*time.Hour))
	result := engine.runActivationSweep(context.Background())
	if result.Failed != 1 {
		t.Fatalf("expected 1 failed activation, got %+v", result)
	}

	// The next tick retries the same subscription.
	repo.failActivate = nil
	result = engine.runActivationSweep(context.Background())
	if result.Activated != 1 {
		t.Fatalf("expected activation on retry, got %+v", result)
	}
}
