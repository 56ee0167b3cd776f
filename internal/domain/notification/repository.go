package notification

import (
	"context"
)

// Repository defines the notification repository interface
type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	CreateBatch(ctx context.Context, notifications []*Notification) error
	MarkDelivered(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// ListRetryable returns undelivered notifications with fewer than maxAttempts attempts.
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*Notification, error)
}
