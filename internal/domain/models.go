/**
 * @description
 * This file defines the core domain models for the settlement engine.
 * These structs map to the database tables owned by the engine and are used
 * across the sweep logic, the persistence layer, and the admin API.
 *
 * @notes
 * - Monetary amounts are stored as `int64` in cents (the smallest platform
 *   currency unit) to avoid floating-point inaccuracies with financial data.
 *   Plans are priced in whole currency units, so every amount that reaches the
 *   matching logic is a whole multiple of 100 cents.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentIntent statuses.
const (
	IntentStatusActive    = "active"
	IntentStatusCompleted = "completed"
	IntentStatusExpired   = "expired"
)

// Subscription statuses.
const (
	SubscriptionStatusPendingActivation = "pending_activation"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusCompleted         = "completed"
	SubscriptionStatusCancelled         = "cancelled"
)

// LedgerTransaction types.
const (
	TransactionTypeSubscription = "subscription"
	TransactionTypeEarnings     = "earnings"
	TransactionTypeWithdrawal   = "withdrawal"
)

// PaymentIntent represents an expected incoming deposit, created when a user
// begins checkout for a plan. The engine matches anonymous on-chain transfers
// against open intents by amount and time.
type PaymentIntent struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	PlanID              string    `json:"plan_id"`
	ExpectedAmountCents int64     `json:"expected_amount_cents"`
	PayToAddress        string    `json:"pay_to_address"`
	Status              string    `json:"status"` // 'active', 'completed', 'expired'
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Subscription is an investment position funded by exactly one on-chain
// transfer. `source_tx_hash` carries a unique constraint so the same transfer
// can never fund two positions.
type Subscription struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	PlanID            string     `json:"plan_id"`
	PrincipalCents    int64      `json:"principal_cents"`
	AccruedYieldCents int64      `json:"accrued_yield_cents"`
	Status            string     `json:"status"` // 'pending_activation', 'active', 'completed', 'cancelled'
	StartDate         time.Time  `json:"start_date"`
	EndDate           time.Time  `json:"end_date"`
	LastCreditDate    *time.Time `json:"last_credit_date,omitempty"`
	SourceTxHash      string     `json:"source_tx_hash"`
}

// CreditRecord is the append-only audit row for one applied daily credit.
// The unique key (subscription_id, credit_date) is the idempotency guard
// against double-crediting within a calendar day.
type CreditRecord struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	AmountCents    int64     `json:"amount_cents"`
	CreditDate     time.Time `json:"credit_date"` // calendar date, midnight UTC
}

// LedgerTransaction is one row of the user-facing transaction feed, distinct
// from the blockchain ledger. For activation it doubles as the proof that a
// subscription's funding event was durably recorded.
type LedgerTransaction struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Type        string    `json:"type"` // 'subscription', 'earnings', 'withdrawal'
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TokenTransfer is one decoded incoming transfer to the custodial deposit
// address, as reported by the chain gateway. AmountCents is already converted
// from the token's fixed-point representation and rounded to a whole currency
// unit.
type TokenTransfer struct {
	TxHash      string    `json:"tx_hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
	Confirmed   bool      `json:"confirmed"`
}

// CreditDay truncates a point in time to the calendar date used as the
// CreditRecord idempotency key.
func CreditDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
