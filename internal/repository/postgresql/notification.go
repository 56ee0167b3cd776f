package postgresql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

type notificationRepository struct {
	db database.Pool
}

func NewNotificationRepository(db database.Pool) notification.Repository {
	return &notificationRepository{db: db}
}

const insertNotification = `
	INSERT INTO notifications (
		id, recipient_id, sender_id, type, title, message, related_entity_id, data,
		delivery_status, attempts, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)
`

func notificationArgs(n *notification.Notification) ([]any, error) {
	var data []byte
	if n.Data != nil {
		var err error
		if data, err = json.Marshal(n.Data); err != nil {
			return nil, fmt.Errorf("failed to encode notification data: %w", err)
		}
	}
	status := n.DeliveryStatus
	if status == "" {
		status = notification.DeliveryPending
	}
	return []any{
		n.ID, n.RecipientID, n.SenderID, string(n.Type), n.Title, n.Message, n.RelatedEntityID, data,
		string(status), n.Attempts, n.CreatedAt,
	}, nil
}

// Create implements notification.Repository.
func (r *notificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	q := GetQuerier(ctx, r.db)

	args, err := notificationArgs(n)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, insertNotification, args...); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// CreateBatch implements notification.Repository.
func (r *notificationRepository) CreateBatch(ctx context.Context, ns []*notification.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)

	batch := &pgx.Batch{}
	for _, n := range ns {
		args, err := notificationArgs(n)
		if err != nil {
			return err
		}
		batch.Queue(insertNotification, args...)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()
	for range ns {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to batch insert notifications: %w", err)
		}
	}
	return nil
}

// MarkDelivered implements notification.Repository.
func (r *notificationRepository) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE notifications
		SET delivery_status = $2, attempts = attempts + 1, last_error = NULL, delivered_at = now()
		WHERE id = ANY($1)
	`
	if _, err := q.Exec(ctx, query, ids, string(notification.DeliveryDelivered)); err != nil {
		return fmt.Errorf("failed to mark notifications delivered: %w", err)
	}
	return nil
}

// MarkFailed implements notification.Repository.
func (r *notificationRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE notifications
		SET delivery_status = $2, attempts = attempts + 1, last_error = $3
		WHERE id = $1
	`
	if _, err := q.Exec(ctx, query, id, string(notification.DeliveryFailed), reason); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

// ListRetryable implements notification.Repository. Oldest first.
func (r *notificationRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*notification.Notification, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, recipient_id, sender_id, type, title, message, COALESCE(related_entity_id, ''), data,
			   delivery_status, attempts, last_error, created_at, delivered_at
		FROM notifications
		WHERE delivery_status <> $1 AND attempts < $2
		ORDER BY created_at
		LIMIT $3
	`
	rows, err := q.Query(ctx, query, string(notification.DeliveryDelivered), maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0)
	for rows.Next() {
		var (
			n      notification.Notification
			tp     string
			status string
			data   []byte
		)
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.SenderID, &tp, &n.Title, &n.Message, &n.RelatedEntityID, &data,
			&status, &n.Attempts, &n.LastError, &n.CreatedAt, &n.DeliveredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = notification.NotificationType(tp)
		n.DeliveryStatus = notification.DeliveryStatus(status)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("failed to decode notification %s data: %w", n.ID, err)
			}
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list retryable notifications: %w", err)
	}
	return out, nil
}
