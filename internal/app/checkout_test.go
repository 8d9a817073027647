package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/domain"
)

func TestCreatePaymentIntent_UsesPlanPriceAndTTL(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(repo, &chainStub{}, &notifierStub{})
	setEngineTime(engine, t0)

	userID := uuid.New()
	intent, err := engine.CreatePaymentIntent(context.Background(), userID, "growth")
	if err != nil {
		t.Fatalf("CreatePaymentIntent returned error: %v", err)
	}

	if intent.ExpectedAmountCents != 50_000 {
		t.Errorf("expected amount 50000 cents, got %d", intent.ExpectedAmountCents)
	}
	if intent.PayToAddress != testDepositAddress {
		t.Errorf("expected custodial deposit address, got %q", intent.PayToAddress)
	}
	if intent.Status != domain.IntentStatusActive {
		t.Errorf("expected active status, got %q", intent.Status)
	}
	if !intent.ExpiresAt.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("expected 24h TTL, got expiry %v", intent.ExpiresAt)
	}
	if _, ok := repo.intents[intent.ID]; !ok {
		t.Error("intent was not persisted")
	}
}

func TestCreatePaymentIntent_RejectsUnknownPlan(t *testing.T) {
	engine := newTestEngine(newMemRepo(), &chainStub{}, &notifierStub{})

	_, err := engine.CreatePaymentIntent(context.Background(), uuid.New(), "no-such-plan")
	if !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
}
