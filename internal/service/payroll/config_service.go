package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/metrics"
)

type ConfigServiceImpl struct {
	repo     payroll.ConfigRepository
	locker   lock.Locker
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewConfigService(
	repo payroll.ConfigRepository,
	locker lock.Locker,
	notifier notification.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) payroll.ConfigService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigServiceImpl{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "payroll_config"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func configLockKey(id string) string {
	return "payroll_config:" + id
}

// Create implements payroll.ConfigService.
func (s *ConfigServiceImpl) Create(ctx context.Context, actor user.Actor, req payroll.CreateConfigRequest) (*payroll.ConfigEntity, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollConfigManage); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg := req.ToEntity(actor.EmployeeID)
	now := s.now()
	cfg.Version = 1
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to create payroll configuration: %w", err)
	}

	s.logger.InfoContext(ctx, "payroll configuration created",
		"config_id", cfg.ID,
		"kind", cfg.Kind,
		"actor", actor.EmployeeID,
	)
	return cfg, nil
}

// Update implements payroll.ConfigService. Only drafts can change.
func (s *ConfigServiceImpl) Update(ctx context.Context, actor user.Actor, id string, req payroll.UpdateConfigRequest) (*payroll.ConfigEntity, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollConfigManage); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, configLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock payroll configuration: %w", err)
	}
	defer release()

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsEditable() {
		return nil, payroll.ErrConfigNotEditable.WithEntity("payroll_config", id).
			WithStates(string(payroll.ConfigDraft), string(current.Status))
	}
	if current.Version != req.ExpectedVersion {
		return nil, payroll.ErrConfigVersionMismatch.WithEntity("payroll_config", id).
			WithStates(fmt.Sprint(req.ExpectedVersion), fmt.Sprint(current.Version))
	}

	next := req.ToEntity(current.CreatedBy)
	next.ID = current.ID
	next.Version = current.Version
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now()
	if err := s.repo.UpdateDraft(ctx, next, current.Version); err != nil {
		return nil, err
	}
	return next, nil
}

// UpdateStatus implements payroll.ConfigService. The repository re-checks the
// draft status and the author in the same statement that writes.
func (s *ConfigServiceImpl) UpdateStatus(ctx context.Context, actor user.Actor, id string, req payroll.UpdateConfigStatusRequest) (*payroll.ConfigEntity, error) {
	if err := user.RequireCapability(actor, user.CapabilityPayrollConfigApprove); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, configLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock payroll configuration: %w", err)
	}
	defer release()

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != payroll.ConfigDraft {
		return nil, payroll.ErrConfigNotDraft.WithEntity("payroll_config", id).
			WithStates(string(payroll.ConfigDraft), string(current.Status))
	}
	if current.CreatedBy == actor.EmployeeID {
		return nil, payroll.ErrConfigSelfApproval.WithEntity("payroll_config", id).WithField("actor", actor.EmployeeID)
	}

	status := req.TargetStatus()
	updated, err := s.repo.UpdateStatus(ctx, id, status, actor.EmployeeID, optional(req.Reason), s.now())
	if err != nil {
		return nil, err
	}

	s.metrics.IncConfigStatusChange(string(updated.Kind), string(updated.Status))
	s.logger.InfoContext(ctx, "payroll configuration reviewed",
		"config_id", id,
		"kind", updated.Kind,
		"status", updated.Status,
		"actor", actor.EmployeeID,
	)
	if s.notifier != nil {
		sender := actor.EmployeeID
		s.notifier.Notify(ctx, notification.NotifyRequest{
			RecipientID:     updated.CreatedBy,
			SenderID:        &sender,
			Type:            notification.TypePayrollConfigReviewed,
			Title:           "Payroll configuration " + string(updated.Status),
			Message:         fmt.Sprintf("%s %q was %s", updated.Kind, updated.Name, updated.Status),
			RelatedEntityID: updated.ID,
		})
	}
	return updated, nil
}

// Get implements payroll.ConfigService.
func (s *ConfigServiceImpl) Get(ctx context.Context, actor user.Actor, id string) (*payroll.ConfigEntity, error) {
	if err := requireConfigRead(actor); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// List implements payroll.ConfigService.
func (s *ConfigServiceImpl) List(ctx context.Context, actor user.Actor, filter payroll.ConfigFilter) ([]*payroll.ConfigEntity, error) {
	if err := requireConfigRead(actor); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, filter)
}

func requireConfigRead(actor user.Actor) error {
	if actor.Can(user.CapabilityPayrollConfigManage) || actor.Can(user.CapabilityPayrollConfigApprove) {
		return nil
	}
	return user.RequireCapability(actor, user.CapabilityPayrollView)
}
