/**
 * @description
 * RabbitMQ event producer for the settlement engine. Every meaningful
 * settlement event (attribution, activation, daily credit, completion) is
 * published to a durable topic exchange for the notification pipeline to
 * consume. Publishing is fire-and-forget from the engine's point of view:
 * settlement state in the database is the source of truth and notification
 * loss is acceptable.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// EventProducer publishes events to a RabbitMQ exchange.
type EventProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// NoopPublisher is a minimal no-op publisher used when RabbitMQ is
// unavailable at startup. It lets the engine run and log events instead of
// failing hard on a collaborator it does not depend on.
type NoopPublisher struct {
	Logger *slog.Logger
}

func (p *NoopPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.Logger.Info("broker unavailable, dropping event", "exchange", exchange, "routing_key", routingKey)
	return nil
}

func (p *NoopPublisher) Close() {}

// NewEventProducer establishes a connection and channel to RabbitMQ. The dial
// timeout is bounded so startup does not hang on an unreachable broker.
func NewEventProducer(amqpURL string, logger *slog.Logger) (*EventProducer, error) {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, logger: logger}, nil
}

// Publish sends a message to a durable topic exchange with a routing key,
// declaring the exchange if it does not exist yet. On a failed publish it
// reopens the channel once and retries before giving up.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		if err = p.reopenChannel(exchange); err != nil {
			return err
		}
	}

	err = p.publishOnce(ctx, exchange, routingKey, jsonBody)
	if err != nil {
		p.logger.Warn("publish failed, reopening channel", "exchange", exchange, "error", err)
		if err = p.reopenChannel(exchange); err != nil {
			return err
		}
		err = p.publishOnce(ctx, exchange, routingKey, jsonBody)
	}
	return err
}

func (p *EventProducer) publishOnce(ctx context.Context, exchange, routingKey string, body []byte) error {
	return p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
}

func (p *EventProducer) reopenChannel(exchange string) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	p.channel = ch
	return p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// Close shuts down the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
