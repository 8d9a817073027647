/**
 * @description
 * Broker-backed Notifier implementation. Events are published to the
 * notification topic exchange with the event type as routing key. Delivery is
 * strictly fire-and-forget: publish failures are logged and swallowed because
 * settlement state, not notification delivery, is the source of truth.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/pkg/rabbitmq"
)

// EventNotifier publishes settlement events to RabbitMQ.
type EventNotifier struct {
	publisher rabbitmq.Publisher
	exchange  string
	logger    *slog.Logger
}

// NewEventNotifier creates a notifier that publishes to the given exchange.
func NewEventNotifier(publisher rabbitmq.Publisher, exchange string, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{publisher: publisher, exchange: exchange, logger: logger}
}

// notificationEnvelope is the broker message wrapper around every event.
type notificationEnvelope struct {
	UserID     uuid.UUID   `json:"user_id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// Notify publishes one event. It never returns an error to the caller.
func (n *EventNotifier) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload interface{}) {
	envelope := notificationEnvelope{
		UserID:     userID,
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	if err := n.publisher.Publish(ctx, n.exchange, eventType, envelope); err != nil {
		n.logger.Warn("failed to publish notification event",
			"event_type", eventType, "user_id", userID, "error", err)
	}
}
