package rule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
)

// ConditionCompiler validates CEL day conditions before they are stored.
type ConditionCompiler interface {
	Compile(expr string) error
}

type RuleServiceImpl struct {
	tx       database.Transactor
	repo     rule.Repository
	compiler ConditionCompiler
	locker   lock.Locker
	logger   *slog.Logger
}

func NewRuleService(tx database.Transactor, repo rule.Repository, compiler ConditionCompiler, locker lock.Locker, logger *slog.Logger) *RuleServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleServiceImpl{
		tx:       tx,
		repo:     repo,
		compiler: compiler,
		locker:   locker,
		logger:   logger.With("component", "rule"),
	}
}

// activation for one (type, scope) pair is serialized so two concurrent
// activations cannot both win.
func slotKey(t rule.RuleType, scope string) string {
	return "rule:" + string(t) + ":" + scope
}

func (s *RuleServiceImpl) validate(req *rule.CreateRuleRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Condition != "" && s.compiler != nil {
		if err := s.compiler.Compile(req.Condition); err != nil {
			return rule.ErrInvalidCondition.WithField("condition", err.Error())
		}
	}
	return nil
}

// Create implements rule.Service.
func (s *RuleServiceImpl) Create(ctx context.Context, actor user.Actor, req rule.CreateRuleRequest) (rule.Config, error) {
	if err := user.RequireCapability(actor, user.CapabilityAttendanceRules); err != nil {
		return rule.Config{}, err
	}
	if err := s.validate(&req); err != nil {
		return rule.Config{}, err
	}
	return s.create(ctx, req.ToConfig(actor.UserID), req.Active)
}

func (s *RuleServiceImpl) create(ctx context.Context, cfg rule.Config, activate bool) (rule.Config, error) {
	release, err := s.locker.Acquire(ctx, slotKey(cfg.RuleType, cfg.Scope))
	if err != nil {
		return rule.Config{}, fmt.Errorf("failed to lock rule slot: %w", err)
	}
	defer release()

	var created rule.Config
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		cfg.Active = false
		c, err := s.repo.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create rule config: %w", err)
		}
		if activate {
			c, err = s.repo.SetActive(ctx, c.ID, true)
			if err != nil {
				return err
			}
		}
		created = c
		return nil
	})
	return created, err
}

// Get implements rule.Service.
func (s *RuleServiceImpl) Get(ctx context.Context, id string) (rule.Config, error) {
	return s.repo.GetByID(ctx, id)
}

// List implements rule.Service.
func (s *RuleServiceImpl) List(ctx context.Context, filter rule.ListFilter) ([]rule.Config, error) {
	return s.repo.List(ctx, filter)
}

// Activate implements rule.Service.
func (s *RuleServiceImpl) Activate(ctx context.Context, actor user.Actor, id string) (rule.Config, error) {
	return s.setActive(ctx, actor, id, true)
}

// Deactivate implements rule.Service.
func (s *RuleServiceImpl) Deactivate(ctx context.Context, actor user.Actor, id string) (rule.Config, error) {
	return s.setActive(ctx, actor, id, false)
}

func (s *RuleServiceImpl) setActive(ctx context.Context, actor user.Actor, id string, active bool) (rule.Config, error) {
	if err := user.RequireCapability(actor, user.CapabilityAttendanceRules); err != nil {
		return rule.Config{}, err
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return rule.Config{}, err
	}
	if current.Active == active {
		return current, nil
	}

	release, err := s.locker.Acquire(ctx, slotKey(current.RuleType, current.Scope))
	if err != nil {
		return rule.Config{}, fmt.Errorf("failed to lock rule slot: %w", err)
	}
	defer release()

	var updated rule.Config
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		updated, err = s.repo.SetActive(ctx, id, active)
		return err
	})
	if err != nil {
		return rule.Config{}, err
	}
	s.logger.InfoContext(ctx, "rule config toggled",
		"rule_id", id, "rule_type", updated.RuleType, "scope", updated.Scope, "active", active, "actor", actor.UserID)
	return updated, nil
}

// Seed implements rule.Service. Seeds are upserted by (rule type, scope), so
// running it on every start is safe.
func (s *RuleServiceImpl) Seed(ctx context.Context, seeds []rule.CreateRuleRequest) (int, error) {
	applied := 0
	for i := range seeds {
		req := seeds[i]
		if err := s.validate(&req); err != nil {
			return applied, fmt.Errorf("rule seed %d: %w", i, err)
		}
		cfg := req.ToConfig(user.SystemActor().UserID)

		existing, err := s.repo.FindByTypeAndScope(ctx, cfg.RuleType, cfg.Scope)
		if err != nil {
			return applied, fmt.Errorf("rule seed %d: %w", i, err)
		}
		if existing == nil {
			if _, err := s.create(ctx, cfg, req.Active); err != nil {
				return applied, fmt.Errorf("rule seed %d: %w", i, err)
			}
			applied++
			continue
		}

		cfg.ID = existing.ID
		cfg.Active = existing.Active
		if _, err := s.repo.Replace(ctx, cfg); err != nil {
			return applied, fmt.Errorf("rule seed %d: %w", i, err)
		}
		if req.Active && !existing.Active {
			if _, err := s.repo.SetActive(ctx, existing.ID, true); err != nil {
				return applied, fmt.Errorf("rule seed %d: %w", i, err)
			}
		}
		applied++
	}
	s.logger.InfoContext(ctx, "rule seeds applied", "count", applied)
	return applied, nil
}

// ActiveSet implements rule.Store.
func (s *RuleServiceImpl) ActiveSet(ctx context.Context, scope string) (rule.Set, error) {
	if scope == "" {
		scope = rule.ScopeGlobal
	}
	scopes := []string{rule.ScopeGlobal}
	if scope != rule.ScopeGlobal {
		scopes = append(scopes, scope)
	}
	active, err := s.repo.ListActive(ctx, scopes)
	if err != nil {
		return rule.Set{}, fmt.Errorf("failed to list active rules: %w", err)
	}
	return rule.NewSet(scope, active), nil
}
