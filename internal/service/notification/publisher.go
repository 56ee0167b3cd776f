package notification

import (
	"context"
	"log/slog"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/mq"
)

// MessagePublisher is satisfied by *mq.Publisher.
type MessagePublisher interface {
	Publish(ctx context.Context, routingKey string, msg *mq.Message) error
}

// AMQPPublisher routes each notification to "notification.<type>".
type AMQPPublisher struct {
	pub MessagePublisher
}

func NewAMQPPublisher(pub MessagePublisher) *AMQPPublisher {
	return &AMQPPublisher{pub: pub}
}

func RoutingKey(t notification.NotificationType) string {
	return "notification." + string(t)
}

type wirePayload struct {
	RecipientID     string                 `json:"recipient_id"`
	SenderID        *string                `json:"sender_id,omitempty"`
	Title           string                 `json:"title"`
	Message         string                 `json:"message"`
	RelatedEntityID string                 `json:"related_entity_id,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
}

func (p *AMQPPublisher) Publish(ctx context.Context, n *notification.Notification) error {
	key := RoutingKey(n.Type)
	return p.pub.Publish(ctx, key, &mq.Message{
		ID:   n.ID,
		Type: key,
		Payload: wirePayload{
			RecipientID:     n.RecipientID,
			SenderID:        n.SenderID,
			Title:           n.Title,
			Message:         n.Message,
			RelatedEntityID: n.RelatedEntityID,
			Data:            n.Data,
		},
		Timestamp: n.CreatedAt,
	})
}

// LogPublisher stands in for a broker in local setups.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "notification_log_publisher")}
}

func (p *LogPublisher) Publish(ctx context.Context, n *notification.Notification) error {
	p.logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"recipient_id", n.RecipientID,
		"type", n.Type,
		"title", n.Title,
		"related_entity_id", n.RelatedEntityID,
	)
	return nil
}
