/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface: all SQL for payment intents, subscriptions, credit records, and
 * the user-facing ledger feed.
 *
 * The schema is expected to carry two unique constraints the engine leans on
 * for crash-safe idempotency:
 *   - subscriptions.source_tx_hash           (one position per funding transfer)
 *   - credit_records(subscription_id, credit_date) (one credit per day)
 * Violations of either are mapped to sentinel errors so callers can treat
 * "already done" as success.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stablevest/settlement-engine/internal/domain"
)

var (
	ErrIntentNotFound       = errors.New("payment intent not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrDuplicateFundingTx   = errors.New("transfer already funds a subscription")
	ErrAlreadyCredited      = errors.New("subscription already credited for this date")
)

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreatePaymentIntent inserts a new active payment intent.
func (r *PostgresRepository) CreatePaymentIntent(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents
			(id, user_id, plan_id, expected_amount_cents, pay_to_address, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		intent.ID, intent.UserID, intent.PlanID, intent.ExpectedAmountCents,
		intent.PayToAddress, intent.Status, intent.CreatedAt, intent.ExpiresAt)
	return err
}

// ExpireOverdueIntents flips every active intent past its expiry to 'expired'
// and reports how many rows changed. Completed and expired intents are never
// touched again.
func (r *PostgresRepository) ExpireOverdueIntents(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE payment_intents
		SET status = 'expired'
		WHERE status = 'active' AND expires_at <= $1
	`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindMatchingIntent implements the attribution heuristic's database half:
// exact amount, active status, creation time within the window around the
// transfer timestamp, most recently created first.
func (r *PostgresRepository) FindMatchingIntent(ctx context.Context, amountCents int64, transferTime time.Time, window time.Duration) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	query := `
		SELECT id, user_id, plan_id, expected_amount_cents, pay_to_address, status, created_at, expires_at
		FROM payment_intents
		WHERE status = 'active'
		  AND expected_amount_cents = $1
		  AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, amountCents, transferTime.Add(-window), transferTime.Add(window)).Scan(
		&intent.ID, &intent.UserID, &intent.PlanID, &intent.ExpectedAmountCents,
		&intent.PayToAddress, &intent.Status, &intent.CreatedAt, &intent.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// SubscriptionExistsByFundingTx reports whether a transfer hash already funds
// a subscription. This is the primary reprocessing guard; the unique
// constraint on source_tx_hash is the crash-safe backstop.
func (r *PostgresRepository) SubscriptionExistsByFundingTx(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE source_tx_hash = $1)`
	if err := r.db.QueryRow(ctx, query, txHash).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateFundedSubscription performs the attribution write unit atomically:
// insert the subscription, write the funding ledger transaction, and only
// then mark the intent completed. If any step fails the whole unit rolls
// back, so the intent stays active and the next sweep retries.
func (r *PostgresRepository) CreateFundedSubscription(ctx context.Context, sub *domain.Subscription, intentID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSub := `
		INSERT INTO subscriptions
			(id, user_id, plan_id, principal_cents, accrued_yield_cents, status, start_date, end_date, source_tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, insertSub,
		sub.ID, sub.UserID, sub.PlanID, sub.PrincipalCents, sub.AccruedYieldCents,
		sub.Status, sub.StartDate, sub.EndDate, sub.SourceTxHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateFundingTx
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	insertLedger := `
		INSERT INTO ledger_transactions (id, user_id, type, amount_cents, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	description := fmt.Sprintf("Subscription payment for plan %s", sub.PlanID)
	_, err = tx.Exec(ctx, insertLedger,
		uuid.New(), sub.UserID, domain.TransactionTypeSubscription, sub.PrincipalCents, description, sub.StartDate)
	if err != nil {
		return fmt.Errorf("failed to insert funding ledger transaction: %w", err)
	}

	completeIntent := `
		UPDATE payment_intents
		SET status = 'completed'
		WHERE id = $1 AND status = 'active'
	`
	tag, err := tx.Exec(ctx, completeIntent, intentID)
	if err != nil {
		return fmt.Errorf("failed to complete payment intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}

	return tx.Commit(ctx)
}

// GetPendingSubscriptions fetches every subscription awaiting activation.
func (r *PostgresRepository) GetPendingSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	query := `
		SELECT id, user_id, plan_id, principal_cents, accrued_yield_cents, status,
		       start_date, end_date, last_credit_date, source_tx_hash
		FROM subscriptions
		WHERE status = 'pending_activation'
	`
	return r.querySubscriptions(ctx, query)
}

// GetActiveSubscriptions fetches every subscription eligible for settlement.
func (r *PostgresRepository) GetActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	query := `
		SELECT id, user_id, plan_id, principal_cents, accrued_yield_cents, status,
		       start_date, end_date, last_credit_date, source_tx_hash
		FROM subscriptions
		WHERE status = 'active'
	`
	return r.querySubscriptions(ctx, query)
}

func (r *PostgresRepository) querySubscriptions(ctx context.Context, query string) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.PlanID, &sub.PrincipalCents, &sub.AccruedYieldCents,
			&sub.Status, &sub.StartDate, &sub.EndDate, &sub.LastCreditDate, &sub.SourceTxHash)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ActivateSubscription moves a pending subscription to 'active'. The status
// guard in the WHERE clause makes the transition one-way even under
// concurrent callers.
func (r *PostgresRepository) ActivateSubscription(ctx context.Context, subID uuid.UUID) error {
	query := `
		UPDATE subscriptions
		SET status = 'active'
		WHERE id = $1 AND status = 'pending_activation'
	`
	tag, err := r.db.Exec(ctx, query, subID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// CompleteSubscription marks an active subscription as having reached the end
// of its term.
func (r *PostgresRepository) CompleteSubscription(ctx context.Context, subID uuid.UUID) error {
	query := `
		UPDATE subscriptions
		SET status = 'completed'
		WHERE id = $1 AND status = 'active'
	`
	tag, err := r.db.Exec(ctx, query, subID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// HasFundingLedgerTransaction reports whether the user's ledger feed contains
// a subscription-type entry for the exact amount at or after `since`. The
// activation sweep uses this as proof that the funding write unit completed.
func (r *PostgresRepository) HasFundingLedgerTransaction(ctx context.Context, userID uuid.UUID, amountCents int64, since time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM ledger_transactions
			WHERE user_id = $1 AND type = 'subscription' AND amount_cents = $2 AND created_at >= $3
		)
	`
	if err := r.db.QueryRow(ctx, query, userID, amountCents, since).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// HasCreditForDate reports whether a credit record already exists for the
// subscription on the given calendar date.
func (r *PostgresRepository) HasCreditForDate(ctx context.Context, subID uuid.UUID, creditDate time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM credit_records
			WHERE subscription_id = $1 AND credit_date = $2
		)
	`
	if err := r.db.QueryRow(ctx, query, subID, domain.CreditDay(creditDate)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ApplyDailyCredit performs the settlement write unit atomically: bump the
// accrued yield, write the earnings ledger transaction, and insert the credit
// record last. The unique key on (subscription_id, credit_date) turns a
// concurrent or replayed attempt into ErrAlreadyCredited with the whole unit
// rolled back.
func (r *PostgresRepository) ApplyDailyCredit(ctx context.Context, sub *domain.Subscription, creditCents int64, creditDate time.Time, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updateSub := `
		UPDATE subscriptions
		SET accrued_yield_cents = accrued_yield_cents + $1,
		    last_credit_date = $2
		WHERE id = $3 AND status = 'active'
	`
	tag, err := tx.Exec(ctx, updateSub, creditCents, now, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update accrued yield: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}

	insertLedger := `
		INSERT INTO ledger_transactions (id, user_id, type, amount_cents, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	description := fmt.Sprintf("Daily earnings for plan %s", sub.PlanID)
	_, err = tx.Exec(ctx, insertLedger,
		uuid.New(), sub.UserID, domain.TransactionTypeEarnings, creditCents, description, now)
	if err != nil {
		return fmt.Errorf("failed to insert earnings ledger transaction: %w", err)
	}

	insertCredit := `
		INSERT INTO credit_records (id, subscription_id, amount_cents, credit_date)
		VALUES ($1, $2, $3, $4)
	`
	_, err = tx.Exec(ctx, insertCredit, uuid.New(), sub.ID, creditCents, domain.CreditDay(creditDate))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyCredited
		}
		return fmt.Errorf("failed to insert credit record: %w", err)
	}

	return tx.Commit(ctx)
}
