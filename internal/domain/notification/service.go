package notification

import (
	"context"
)

// Notifier is the fire-and-forget notification collaborator. Notify never
// returns an error: delivery problems are logged and retried out of band.
type Notifier interface {
	Notify(ctx context.Context, req NotifyRequest)
}

// Publisher pushes a stored notification to an external transport.
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
}

// Service defines the notification service interface
type Service interface {
	Notifier

	// RetryPending redelivers notifications whose delivery failed.
	RetryPending(ctx context.Context) (int, error)

	// SSE subscription
	Subscribe(ctx context.Context, recipientID string) (<-chan SSEEvent, func())

	// Lifecycle
	Stop()
}
