/**
 * @description
 * Daily settlement sweep: applies the fixed daily credit to every active
 * subscription at most once per calendar day.
 *
 * The existence of a credit record for (subscription, day) is the entire
 * idempotency contract. It is checked immediately before the write, and the
 * write unit inserts the credit record last inside one database transaction
 * whose unique key turns any replay into a no-op. Yield is non-compounding:
 * the credit is always computed off the principal, so it is identical every
 * day of the position's life.
 *
 * Completion is handled lazily here rather than on its own schedule: a
 * position past its end date is marked completed and never credited again.
 */
package app

import (
	"context"
	"errors"

	"github.com/stablevest/settlement-engine/internal/domain"
	"github.com/stablevest/settlement-engine/internal/store"
)

// SettlementResult summarizes one settlement sweep.
type SettlementResult struct {
	Evaluated int `json:"evaluated"`
	Credited  int `json:"credited"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (e *Engine) runSettlementSweep(ctx context.Context) SettlementResult {
	var result SettlementResult

	active, err := e.repo.GetActiveSubscriptions(ctx)
	if err != nil {
		e.logger.Error("failed to fetch active subscriptions", "error", err)
		return result
	}

	now := e.now()
	for _, sub := range active {
		result.Evaluated++

		if now.After(sub.EndDate) {
			if err := e.repo.CompleteSubscription(ctx, sub.ID); err != nil {
				result.Failed++
				e.logger.Error("failed to complete subscription", "subscription_id", sub.ID, "error", err)
				continue
			}
			result.Completed++
			e.logger.Info("subscription term ended", "subscription_id", sub.ID, "plan_id", sub.PlanID)
			e.notify(ctx, sub.UserID, domain.EventSubscriptionCompleted, domain.SubscriptionCompletedEvent{
				SubscriptionID:    sub.ID,
				PlanID:            sub.PlanID,
				AccruedYieldCents: sub.AccruedYieldCents,
			})
			continue
		}

		// Mirrors the activation dwell: no credit inside the first day.
		if now.Sub(sub.StartDate) < e.config.ActivationDwell() {
			result.Skipped++
			continue
		}

		creditDay := domain.CreditDay(now)
		credited, err := e.repo.HasCreditForDate(ctx, sub.ID, creditDay)
		if err != nil {
			result.Failed++
			e.logger.Error("failed to check credit record", "subscription_id", sub.ID, "error", err)
			continue
		}
		if credited {
			result.Skipped++
			continue
		}

		plan, ok := e.catalog.ByID(sub.PlanID)
		if !ok {
			result.Failed++
			e.logger.Error("subscription references unknown plan, skipping",
				"subscription_id", sub.ID, "plan_id", sub.PlanID)
			continue
		}

		creditCents := plan.DailyCreditCents(sub.PrincipalCents)
		if creditCents <= 0 {
			// Crediting a wrong amount is worse than crediting nothing.
			result.Failed++
			e.logger.Error("computed non-positive daily credit, refusing to write",
				"subscription_id", sub.ID, "plan_id", sub.PlanID,
				"principal_cents", sub.PrincipalCents, "credit_cents", creditCents)
			continue
		}

		if err := e.repo.ApplyDailyCredit(ctx, &sub, creditCents, creditDay, now); err != nil {
			if errors.Is(err, store.ErrAlreadyCredited) {
				result.Skipped++
				continue
			}
			result.Failed++
			e.logger.Error("failed to apply daily credit", "subscription_id", sub.ID, "error", err)
			continue
		}

		result.Credited++
		e.logger.Info("daily credit applied",
			"subscription_id", sub.ID, "plan_id", sub.PlanID, "credit_cents", creditCents)

		e.notify(ctx, sub.UserID, domain.EventSubscriptionCredited, domain.SubscriptionCreditedEvent{
			SubscriptionID:    sub.ID,
			AmountCents:       creditCents,
			AccruedYieldCents: sub.AccruedYieldCents + creditCents,
			CreditDate:        creditDay,
		})
	}

	return result
}
