package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is the envelope every published body is wrapped in.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode renders msg as a persistent JSON publishing.
func Encode(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}

type Publisher struct {
	conn     *Connection
	exchange string
	logger   *slog.Logger
}

func NewPublisher(conn *Connection, exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, exchange: exchange, logger: logger.With("component", "amqp_publisher")}
}

// Publish sends msg to the publisher's exchange under routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, msg *Message) error {
	pub, err := Encode(msg)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, pub); err != nil {
			return fmt.Errorf("failed to publish to %s/%s: %w", p.exchange, routingKey, err)
		}
		p.logger.DebugContext(ctx, "published message",
			"exchange", p.exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// SetupTopology declares a durable topic exchange and a durable queue bound to
// it with bindingKey.
func SetupTopology(ctx context.Context, conn *Connection, exchange, queue, bindingKey string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, bindingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", queue, exchange, err)
		}
		return nil
	})
}
