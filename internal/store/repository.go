/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the settlement engine performs. The sweeps depend on this interface
 * rather than on PostgreSQL directly, which keeps the business logic testable
 * with in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For record identifiers.
 * - internal/domain: The engine's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Payment intent methods
	CreatePaymentIntent(ctx context.Context, intent *domain.PaymentIntent) error
	ExpireOverdueIntents(ctx context.Context, now time.Time) (int64, error)
	// FindMatchingIntent returns the most recently created active intent with
	// the given expected amount whose creation time lies within +/- window of
	// transferTime, or ErrIntentNotFound.
	FindMatchingIntent(ctx context.Context, amountCents int64, transferTime time.Time, window time.Duration) (*domain.PaymentIntent, error)

	// Subscription methods
	SubscriptionExistsByFundingTx(ctx context.Context, txHash string) (bool, error)
	// CreateFundedSubscription inserts the subscription, writes the funding
	// ledger transaction, and marks the intent completed in one database
	// transaction. Returns ErrDuplicateFundingTx if the transfer already funds
	// a subscription, ErrIntentNotFound if the intent is no longer active.
	CreateFundedSubscription(ctx context.Context, sub *domain.Subscription, intentID uuid.UUID) error
	GetPendingSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	GetActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	ActivateSubscription(ctx context.Context, subID uuid.UUID) error
	CompleteSubscription(ctx context.Context, subID uuid.UUID) error

	// Ledger feed methods
	HasFundingLedgerTransaction(ctx context.Context, userID uuid.UUID, amountCents int64, since time.Time) (bool, error)

	// Daily credit methods
	HasCreditForDate(ctx context.Context, subID uuid.UUID, creditDate time.Time) (bool, error)
	// ApplyDailyCredit updates the subscription's accrued yield, writes the
	// earnings ledger transaction, and inserts the credit record last, all in
	// one database transaction. Returns ErrAlreadyCredited if a credit record
	// for (subID, creditDate) already exists.
	ApplyDailyCredit(ctx context.Context, sub *domain.Subscription, creditCents int64, creditDate time.Time, now time.Time) error
}
