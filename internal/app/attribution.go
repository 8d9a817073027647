/**
 * @description
 * Payment attribution sweep: correlates anonymous incoming transfers on the
 * shared deposit address with open payment intents.
 *
 * The only correlation key available is amount plus approximate time, because
 * every user pays the same custodial address. The matcher is deliberately a
 * bounded heuristic: exact amount, creation time within a symmetric window of
 * the transfer timestamp, most recently created intent wins. Two users
 * requesting the identical plan amount inside the same window can be
 * misattributed; that limitation is accepted and isolated here so a stronger
 * correlation key (per-user sub-address, memo tag) can replace it later
 * without touching the lifecycle or settlement logic.
 */
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/domain"
	"github.com/stablevest/settlement-engine/internal/store"
)

// AttributionResult summarizes one attribution sweep.
type AttributionResult struct {
	ExpiredIntents   int64 `json:"expired_intents"`
	Evaluated        int   `json:"evaluated"`
	Matched          int   `json:"matched"`
	AlreadyProcessed int   `json:"already_processed"`
	Unmatched        int   `json:"unmatched"`
	Failed           int   `json:"failed"`
}

func (e *Engine) runAttributionSweep(ctx context.Context) AttributionResult {
	var result AttributionResult
	now := e.now()

	expired, err := e.repo.ExpireOverdueIntents(ctx, now)
	if err != nil {
		e.logger.Error("failed to expire overdue intents", "error", err)
	}
	result.ExpiredIntents = expired

	transfers, err := e.chain.ListIncomingTransfers(ctx, e.config.DepositAddress, e.config.TransferLookback())
	if err != nil {
		// Abandon the sweep for this tick; the transfers stay inside the
		// lookback window and are re-evaluated on the next one.
		e.logger.Error("failed to list incoming transfers", "error", err)
		return result
	}

	for _, transfer := range transfers {
		result.Evaluated++
		if err := e.attributeTransfer(ctx, transfer, &result); err != nil {
			result.Failed++
			e.logger.Error("failed to attribute transfer",
				"tx_hash", transfer.TxHash, "amount_cents", transfer.AmountCents, "error", err)
		}
	}

	return result
}

// attributeTransfer processes a single transfer. Failure isolation is
// per-transfer: an error here never aborts the rest of the sweep.
func (e *Engine) attributeTransfer(ctx context.Context, transfer domain.TokenTransfer, result *AttributionResult) error {
	exists, err := e.repo.SubscriptionExistsByFundingTx(ctx, transfer.TxHash)
	if err != nil {
		return err
	}
	if exists {
		result.AlreadyProcessed++
		return nil
	}

	intent, err := e.repo.FindMatchingIntent(ctx, transfer.AmountCents, transfer.Timestamp, e.config.AttributionWindow())
	if err != nil {
		if errors.Is(err, store.ErrIntentNotFound) {
			// No open intent claims this amount in the window. Leave the
			// transfer unattributed rather than guess; it ages out of the
			// lookback window on its own.
			result.Unmatched++
			return nil
		}
		return err
	}

	plan, ok := e.catalog.ByID(intent.PlanID)
	if !ok {
		return fmt.Errorf("no plan in catalog with id %q", intent.PlanID)
	}

	now := e.now()
	sub := &domain.Subscription{
		ID:             uuid.New(),
		UserID:         intent.UserID,
		PlanID:         intent.PlanID,
		PrincipalCents: transfer.AmountCents,
		Status:         domain.SubscriptionStatusPendingActivation,
		StartDate:      now,
		EndDate:        now.AddDate(0, 0, plan.DurationDays),
		SourceTxHash:   transfer.TxHash,
	}

	// The store flips the intent to completed only inside the same database
	// transaction as the subscription insert, so a failed insert leaves the
	// intent active for the next tick to retry.
	if err := e.repo.CreateFundedSubscription(ctx, sub, intent.ID); err != nil {
		if errors.Is(err, store.ErrDuplicateFundingTx) {
			result.AlreadyProcessed++
			return nil
		}
		return err
	}

	result.Matched++
	e.logger.Info("transfer attributed",
		"tx_hash", transfer.TxHash, "subscription_id", sub.ID, "plan_id", sub.PlanID, "amount_cents", sub.PrincipalCents)

	e.notify(ctx, sub.UserID, domain.EventPaymentAttributed, domain.PaymentAttributedEvent{
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		AmountCents:    sub.PrincipalCents,
		TxHash:         sub.SourceTxHash,
	})
	return nil
}
