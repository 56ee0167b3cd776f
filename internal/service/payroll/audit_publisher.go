package payroll

import (
	"context"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
)

// EventAppender is satisfied by *eventlog.Producer.
type EventAppender interface {
	Append(ctx context.Context, key, eventType string, value any) error
}

// auditEvent is the wire shape of a run transition on the audit stream.
type auditEvent struct {
	ID         string  `json:"id"`
	RunID      string  `json:"run_id"`
	Event      string  `json:"event"`
	ActorID    string  `json:"actor_id"`
	ActorRole  string  `json:"actor_role"`
	FromStatus string  `json:"from_status,omitempty"`
	ToStatus   string  `json:"to_status"`
	WasFrozen  bool    `json:"was_frozen"`
	IsFrozen   bool    `json:"is_frozen"`
	Reason     *string `json:"reason,omitempty"`
	Version    int     `json:"version"`
	At         string  `json:"at"`
}

type StreamAuditPublisher struct {
	appender EventAppender
	logger   *slog.Logger
}

func NewStreamAuditPublisher(appender EventAppender, logger *slog.Logger) *StreamAuditPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamAuditPublisher{appender: appender, logger: logger.With("component", "payroll_audit_stream")}
}

// PublishAudit implements payroll.AuditPublisher. The entry is already
// committed, so failures are only logged.
func (p *StreamAuditPublisher) PublishAudit(ctx context.Context, entry payroll.AuditEntry) {
	ev := auditEvent{
		ID:         entry.ID,
		RunID:      entry.RunID,
		Event:      string(entry.Event),
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		WasFrozen:  entry.WasFrozen,
		IsFrozen:   entry.IsFrozen,
		Reason:     entry.Reason,
		Version:    entry.Version,
		At:         entry.At.UTC().Format(time.RFC3339Nano),
	}
	if err := p.appender.Append(ctx, entry.RunID, string(entry.Event), ev); err != nil {
		p.logger.WarnContext(ctx, "failed to publish payroll audit entry",
			"run_id", entry.RunID,
			"event", entry.Event,
			"version", entry.Version,
			"error", err,
		)
	}
}
