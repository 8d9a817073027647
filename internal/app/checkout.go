/**
 * @description
 * Checkout entry point into the engine's data model: creating the payment
 * intent an incoming transfer will later be matched against.
 */
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/domain"
)

// ErrUnknownPlan is returned when checkout references a plan id that is not
// in the catalog.
var ErrUnknownPlan = errors.New("unknown plan")

// CreatePaymentIntent opens a new intent for the given user and plan. The
// expected amount is the plan price and the intent expires after the
// configured TTL; an expired intent is never matched.
func (e *Engine) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, planID string) (*domain.PaymentIntent, error) {
	plan, ok := e.catalog.ByID(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}

	now := e.now()
	intent := &domain.PaymentIntent{
		ID:                  uuid.New(),
		UserID:              userID,
		PlanID:              plan.ID,
		ExpectedAmountCents: plan.PriceCents,
		PayToAddress:        e.config.DepositAddress,
		Status:              domain.IntentStatusActive,
		CreatedAt:           now,
		ExpiresAt:           now.Add(e.config.IntentTTL()),
	}

	if err := e.repo.CreatePaymentIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	e.logger.Info("payment intent created",
		"intent_id", intent.ID, "plan_id", plan.ID, "amount_cents", intent.ExpectedAmountCents)
	return intent, nil
}

// Plans exposes the static catalog to the API layer.
func (e *Engine) Plans() []domain.Plan {
	return e.catalog.All()
}

// LookupTransfer fetches and decodes one transaction by hash for operator
// tooling. A nil transfer with nil error means the chain does not (yet) have
// a confirmed, decodable transaction under that hash.
func (e *Engine) LookupTransfer(ctx context.Context, txHash string) (*domain.TokenTransfer, error) {
	return e.chain.GetTransfer(ctx, txHash)
}
