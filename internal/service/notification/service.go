package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/metrics"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/sse"
)

// Config holds notification service configuration
type Config struct {
	BatchSize     int           // default: 100
	FlushInterval time.Duration // default: 5 seconds
	WorkerCount   int           // default: 2
	QueueSize     int           // default: 1000
	MaxAttempts   int           // default: 5
	RetryBatch    int           // default: 200
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBatch <= 0 {
		c.RetryBatch = 200
	}
	return c
}

const sseEventName = "notification"

type NotificationServiceImpl struct {
	repo      notification.Repository
	hub       *sse.Hub
	publisher notification.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	config    Config

	queue    chan *notification.Notification
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	now   func() time.Time
	newID func() string
}

// NewNotificationService starts cfg.WorkerCount background workers. A nil
// publisher means notifications only reach SSE subscribers.
func NewNotificationService(repo notification.Repository, hub *sse.Hub, publisher notification.Publisher, m *metrics.Metrics, logger *slog.Logger, cfg Config) *NotificationServiceImpl {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &NotificationServiceImpl{
		repo:      repo,
		hub:       hub,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "notification_service"),
		config:    cfg,
		queue:     make(chan *notification.Notification, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info("notification service started",
		"workers", cfg.WorkerCount,
		"batch_size", cfg.BatchSize,
		"flush_interval", cfg.FlushInterval,
	)

	return s
}

// Notify queues a notification for async persistence and delivery. When the
// queue is full it is stored and delivered inline.
func (s *NotificationServiceImpl) Notify(ctx context.Context, req notification.NotifyRequest) {
	if req.RecipientID == "" {
		s.metrics.IncNotificationDelivery("rejected")
		s.logger.WarnContext(ctx, "dropping notification", "type", req.Type, "error", notification.ErrRecipientRequired)
		return
	}
	if s.stopped.Load() {
		s.metrics.IncNotificationDelivery("rejected")
		s.logger.WarnContext(ctx, "dropping notification", "recipient_id", req.RecipientID, "type", req.Type, "error", notification.ErrServiceStopped)
		return
	}

	n := &notification.Notification{
		ID:              s.newID(),
		RecipientID:     req.RecipientID,
		SenderID:        req.SenderID,
		Type:            req.Type,
		Title:           req.Title,
		Message:         req.Message,
		RelatedEntityID: req.RelatedEntityID,
		Data:            req.Data,
		DeliveryStatus:  notification.DeliveryPending,
		CreatedAt:       s.now(),
	}

	select {
	case s.queue <- n:
	default:
		s.logger.WarnContext(ctx, "notification queue full, inserting directly",
			"recipient_id", n.RecipientID,
			"error", notification.ErrQueueFull,
		)
		s.directInsert(context.WithoutCancel(ctx), n)
	}
}

func (s *NotificationServiceImpl) directInsert(ctx context.Context, n *notification.Notification) {
	if err := s.repo.Create(ctx, n); err != nil {
		s.metrics.IncNotificationDelivery("store_failed")
		s.logger.ErrorContext(ctx, "failed to store notification", "notification_id", n.ID, "error", err)
		return
	}
	s.deliver(ctx, []*notification.Notification{n}, true)
}

func (s *NotificationServiceImpl) worker(id int) {
	defer s.wg.Done()

	batch := make([]*notification.Notification, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.repo.CreateBatch(ctx, batch); err != nil {
			s.metrics.IncNotificationDelivery("store_failed")
			s.logger.Error("failed to batch insert notifications", "worker", id, "count", len(batch), "error", err)
		} else {
			s.logger.Debug("inserted notifications", "worker", id, "count", len(batch))
			s.deliver(ctx, batch, true)
		}

		batch = make([]*notification.Notification, 0, s.config.BatchSize)
	}

	for {
		select {
		case n := <-s.queue:
			batch = append(batch, n)
			if len(batch) >= s.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			// drain what is already queued
			for len(s.queue) > 0 {
				batch = append(batch, <-s.queue)
				if len(batch) >= s.config.BatchSize {
					flush()
				}
			}
			flush()
			return
		}
	}
}

// deliver pushes stored notifications to live subscribers (when live is set)
// and to the external publisher, then records the outcome.
func (s *NotificationServiceImpl) deliver(ctx context.Context, ns []*notification.Notification, live bool) int {
	delivered := make([]string, 0, len(ns))

	for _, n := range ns {
		if live && s.hub != nil {
			s.hub.Publish(n.RecipientID, sse.Event{
				Event: sseEventName,
				Data:  notification.ToResponse(n),
			})
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, n); err != nil {
				s.metrics.IncNotificationDelivery("failed")
				s.logger.WarnContext(ctx, "failed to publish notification",
					"notification_id", n.ID,
					"recipient_id", n.RecipientID,
					"attempts", n.Attempts+1,
					"error", err,
				)
				if mErr := s.repo.MarkFailed(ctx, n.ID, err.Error()); mErr != nil {
					s.logger.ErrorContext(ctx, "failed to mark notification failed", "notification_id", n.ID, "error", mErr)
				}
				continue
			}
		}

		s.metrics.IncNotificationDelivery("delivered")
		delivered = append(delivered, n.ID)
	}

	if len(delivered) > 0 {
		if err := s.repo.MarkDelivered(ctx, delivered); err != nil {
			s.logger.ErrorContext(ctx, "failed to mark notifications delivered", "count", len(delivered), "error", err)
		}
	}
	return len(delivered)
}

// RetryPending republishes undelivered notifications below the attempt limit.
// Live subscribers already saw them, so only the external publisher is retried.
func (s *NotificationServiceImpl) RetryPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListRetryable(ctx, s.config.MaxAttempts, s.config.RetryBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable notifications: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	n := s.deliver(ctx, pending, false)
	s.logger.InfoContext(ctx, "retried pending notifications", "pending", len(pending), "delivered", n)
	return n, nil
}

// Subscribe creates an SSE subscription for a recipient
func (s *NotificationServiceImpl) Subscribe(ctx context.Context, recipientID string) (<-chan notification.SSEEvent, func()) {
	ch, cleanup := s.hub.Subscribe(recipientID)

	out := make(chan notification.SSEEvent, 10)

	go func() {
		defer close(out)
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				resp, ok := event.Data.(notification.NotificationResponse)
				if !ok {
					continue
				}
				select {
				case out <- notification.SSEEvent{Event: event.Event, Data: resp}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cleanup
}

// Stop flushes queued notifications and waits for the workers.
func (s *NotificationServiceImpl) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Info("notification service stopped")
	})
}

var _ notification.Service = (*NotificationServiceImpl)(nil)
