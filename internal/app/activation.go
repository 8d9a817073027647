/**
 * @description
 * Activation sweep: moves funded subscriptions from pending_activation to
 * active once two conditions hold.
 *
 *   1. Dwell: at least the configured dwell time (24h by default) has passed
 *      since the subscription was created. Combined with the identical
 *      minimum-age check in settlement, "active" always implies the position
 *      is at least one day old.
 *   2. Proof of funding: the user's ledger feed contains a subscription-type
 *      entry for the exact principal dated at or after the start date. This
 *      guards against activating a row whose funding write unit only
 *      partially landed.
 *
 * A subscription that fails either check is simply left pending and
 * re-evaluated on every subsequent tick; that is the normal path for a young
 * position, not an error.
 */
package app

import (
	"context"

	"github.com/stablevest/settlement-engine/internal/domain"
)

// ActivationResult summarizes one activation sweep.
type ActivationResult struct {
	Evaluated    int `json:"evaluated"`
	Activated    int `json:"activated"`
	StillPending int `json:"still_pending"`
	Failed       int `json:"failed"`
}

func (e *Engine) runActivationSweep(ctx context.Context) ActivationResult {
	var result ActivationResult

	pending, err := e.repo.GetPendingSubscriptions(ctx)
	if err != nil {
		e.logger.Error("failed to fetch pending subscriptions", "error", err)
		return result
	}

	now := e.now()
	for _, sub := range pending {
		result.Evaluated++

		if now.Sub(sub.StartDate) < e.config.ActivationDwell() {
			result.StillPending++
			continue
		}

		funded, err := e.repo.HasFundingLedgerTransaction(ctx, sub.UserID, sub.PrincipalCents, sub.StartDate)
		if err != nil {
			result.Failed++
			e.logger.Error("failed to check funding proof", "subscription_id", sub.ID, "error", err)
			continue
		}
		if !funded {
			result.StillPending++
			e.logger.Warn("dwell elapsed but funding transaction missing, leaving pending",
				"subscription_id", sub.ID, "user_id", sub.UserID)
			continue
		}

		if err := e.repo.ActivateSubscription(ctx, sub.ID); err != nil {
			result.Failed++
			e.logger.Error("failed to activate subscription", "subscription_id", sub.ID, "error", err)
			continue
		}

		result.Activated++
		e.logger.Info("subscription activated",
			"subscription_id", sub.ID, "plan_id", sub.PlanID, "end_date", sub.EndDate)

		e.notify(ctx, sub.UserID, domain.EventSubscriptionActivated, domain.SubscriptionActivatedEvent{
			SubscriptionID: sub.ID,
			PlanID:         sub.PlanID,
			EndDate:        sub.EndDate,
		})
	}

	return result
}
