package notification

import (
	"time"
)

// NotifyRequest is the notify(recipientId, title, message, relatedEntityId) call.
type NotifyRequest struct {
	RecipientID     string
	SenderID        *string
	Type            NotificationType
	Title           string
	Message         string
	RelatedEntityID string
	Data            map[string]interface{}
}

// NotificationResponse represents a notification in API responses
type NotificationResponse struct {
	ID              string                 `json:"id"`
	Type            NotificationType       `json:"type"`
	Title           string                 `json:"title"`
	Message         string                 `json:"message"`
	RelatedEntityID string                 `json:"related_entity_id,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// SSEEvent is a server-sent event frame
type SSEEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func ToResponse(n *Notification) NotificationResponse {
	return NotificationResponse{
		ID:              n.ID,
		Type:            n.Type,
		Title:           n.Title,
		Message:         n.Message,
		RelatedEntityID: n.RelatedEntityID,
		Data:            n.Data,
		CreatedAt:       n.CreatedAt,
	}
}
