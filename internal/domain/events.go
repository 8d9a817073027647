/**
 * @description
 * This file defines the payloads for events the engine publishes to the
 * message broker (RabbitMQ). The notification-service consumes these to fan
 * out user-facing messages; delivery is fire-and-forget and settlement state
 * never depends on it.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification event types.
const (
	EventPaymentAttributed     = "payment.attributed"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCredited  = "subscription.credited"
	EventSubscriptionCompleted = "subscription.completed"
)

// PaymentAttributedEvent is published when an on-chain transfer has been
// matched to a payment intent and a subscription has been created.
type PaymentAttributedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	AmountCents    int64     `json:"amount_cents"`
	TxHash         string    `json:"tx_hash"`
}

// SubscriptionActivatedEvent is published when a position leaves
// pending_activation and starts earning.
type SubscriptionActivatedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	EndDate        time.Time `json:"end_date"`
}

// SubscriptionCreditedEvent is published after a daily credit is applied.
type SubscriptionCreditedEvent struct {
	SubscriptionID    uuid.UUID `json:"subscription_id"`
	AmountCents       int64     `json:"amount_cents"`
	AccruedYieldCents int64     `json:"accrued_yield_cents"`
	CreditDate        time.Time `json:"credit_date"`
}

// SubscriptionCompletedEvent is published when a position reaches the end of
// its term.
type SubscriptionCompletedEvent struct {
	SubscriptionID    uuid.UUID `json:"subscription_id"`
	PlanID            string    `json:"plan_id"`
	AccruedYieldCents int64     `json:"accrued_yield_cents"`
}
