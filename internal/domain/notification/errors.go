package notification

import "errors"

// Notification domain errors
var (
	ErrQueueFull         = errors.New("notification queue is full")
	ErrRecipientRequired = errors.New("notification recipient is required")
	ErrServiceStopped    = errors.New("notification service stopped")
)
