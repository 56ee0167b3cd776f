package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

const ruleColumns = `
	id, rule_type, scope, grace_period_minutes, calculation_method, min_minutes,
	requires_approval, is_holiday, is_rest_day,
	suppress_lateness, suppress_early_leave, suppress_penalties,
	dates, condition, active, version, created_by, created_at, updated_at`

type ruleRepository struct {
	db database.Pool
}

func NewRuleRepository(db database.Pool) rule.Repository {
	return &ruleRepository{db: db}
}

func scanRule(row pgx.Row) (rule.Config, error) {
	var (
		c        rule.Config
		ruleType string
		method   string
		dates    []byte
	)
	err := row.Scan(
		&c.ID, &ruleType, &c.Scope, &c.GracePeriodMinutes, &method, &c.MinMinutes,
		&c.RequiresApproval, &c.IsHoliday, &c.IsRestDay,
		&c.SuppressLateness, &c.SuppressEarlyLeave, &c.SuppressPenalties,
		&dates, &c.Condition, &c.Active, &c.Version, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return rule.Config{}, err
	}
	c.RuleType = rule.RuleType(ruleType)
	c.CalculationMethod = rule.CalculationMethod(method)
	if len(dates) > 0 {
		if err := json.Unmarshal(dates, &c.Dates); err != nil {
			return rule.Config{}, fmt.Errorf("failed to decode dates of rule %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func (r *ruleRepository) queryRules(ctx context.Context, query string, args ...any) ([]rule.Config, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rule.Config
	for rows.Next() {
		c, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func encodeDates(dates []string) ([]byte, error) {
	if dates == nil {
		dates = []string{}
	}
	return json.Marshal(dates)
}

// Create implements rule.Repository.
func (r *ruleRepository) Create(ctx context.Context, cfg rule.Config) (rule.Config, error) {
	q := GetQuerier(ctx, r.db)

	if cfg.ID == "" {
		cfg.ID = newID()
	}
	dates, err := encodeDates(cfg.Dates)
	if err != nil {
		return rule.Config{}, fmt.Errorf("failed to encode rule dates: %w", err)
	}

	query := `
		INSERT INTO attendance_rules (
			id, rule_type, scope, grace_period_minutes, calculation_method, min_minutes,
			requires_approval, is_holiday, is_rest_day,
			suppress_lateness, suppress_early_leave, suppress_penalties,
			dates, condition, active, version, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1, $16)
		RETURNING ` + ruleColumns

	created, err := scanRule(q.QueryRow(ctx, query,
		cfg.ID, string(cfg.RuleType), cfg.Scope, cfg.GracePeriodMinutes, string(cfg.CalculationMethod), cfg.MinMinutes,
		cfg.RequiresApproval, cfg.IsHoliday, cfg.IsRestDay,
		cfg.SuppressLateness, cfg.SuppressEarlyLeave, cfg.SuppressPenalties,
		dates, cfg.Condition, cfg.Active, cfg.CreatedBy,
	))
	if err != nil {
		return rule.Config{}, mapError(err, nil)
	}
	return created, nil
}

// GetByID implements rule.Repository.
func (r *ruleRepository) GetByID(ctx context.Context, id string) (rule.Config, error) {
	q := GetQuerier(ctx, r.db)

	c, err := scanRule(q.QueryRow(ctx, `SELECT `+ruleColumns+` FROM attendance_rules WHERE id = $1`, id))
	if err != nil {
		return rule.Config{}, mapError(err, rule.ErrRuleNotFound.WithEntity("rule_config", id))
	}
	return c, nil
}

// List implements rule.Repository.
func (r *ruleRepository) List(ctx context.Context, filter rule.ListFilter) ([]rule.Config, error) {
	var (
		conds []string
		args  []any
	)
	if filter.RuleType != nil {
		args = append(args, string(*filter.RuleType))
		conds = append(conds, fmt.Sprintf("rule_type = $%d", len(args)))
	}
	if filter.Scope != nil {
		args = append(args, *filter.Scope)
		conds = append(conds, fmt.Sprintf("scope = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "active")
	}

	query := `SELECT ` + ruleColumns + ` FROM attendance_rules`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY rule_type, scope, created_at DESC`

	out, err := r.queryRules(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule configs: %w", err)
	}
	return out, nil
}

// ListActive implements rule.Repository.
func (r *ruleRepository) ListActive(ctx context.Context, scopes []string) ([]rule.Config, error) {
	query := `SELECT ` + ruleColumns + ` FROM attendance_rules WHERE active AND scope = ANY($1) ORDER BY rule_type, scope`
	out, err := r.queryRules(ctx, query, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rule configs: %w", err)
	}
	return out, nil
}

// SetActive implements rule.Repository. Both statements run in the caller's
// transaction; the partial unique index rejects a concurrent second activation.
func (r *ruleRepository) SetActive(ctx context.Context, id string, active bool) (rule.Config, error) {
	q := GetQuerier(ctx, r.db)

	if active {
		query := `
			UPDATE attendance_rules o
			SET active = FALSE, version = o.version + 1, updated_at = now()
			FROM attendance_rules t
			WHERE t.id = $1 AND o.id <> t.id AND o.active
			  AND o.rule_type = t.rule_type AND o.scope = t.scope`
		if _, err := q.Exec(ctx, query, id); err != nil {
			return rule.Config{}, fmt.Errorf("failed to deactivate sibling rule configs: %w", err)
		}
	}

	query := `
		UPDATE attendance_rules
		SET active = $2, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING ` + ruleColumns

	c, err := scanRule(q.QueryRow(ctx, query, id, active))
	if err != nil {
		if isUniqueViolation(err) {
			return rule.Config{}, rule.ErrActiveRuleConflict.WithEntity("rule_config", id)
		}
		return rule.Config{}, mapError(err, rule.ErrRuleNotFound.WithEntity("rule_config", id))
	}
	return c, nil
}

// FindByTypeAndScope implements rule.Repository. Returns nil when no config exists.
func (r *ruleRepository) FindByTypeAndScope(ctx context.Context, ruleType rule.RuleType, scope string) (*rule.Config, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + ruleColumns + ` FROM attendance_rules
		WHERE rule_type = $1 AND scope = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	c, err := scanRule(q.QueryRow(ctx, query, string(ruleType), scope))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find rule config: %w", err)
	}
	return &c, nil
}

// Replace implements rule.Repository. The active flag is left alone.
func (r *ruleRepository) Replace(ctx context.Context, cfg rule.Config) (rule.Config, error) {
	q := GetQuerier(ctx, r.db)

	dates, err := encodeDates(cfg.Dates)
	if err != nil {
		return rule.Config{}, fmt.Errorf("failed to encode rule dates: %w", err)
	}

	query := `
		UPDATE attendance_rules SET
			grace_period_minutes = $2, calculation_method = $3, min_minutes = $4,
			requires_approval = $5, is_holiday = $6, is_rest_day = $7,
			suppress_lateness = $8, suppress_early_leave = $9, suppress_penalties = $10,
			dates = $11, condition = $12,
			version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING ` + ruleColumns

	c, err := scanRule(q.QueryRow(ctx, query,
		cfg.ID, cfg.GracePeriodMinutes, string(cfg.CalculationMethod), cfg.MinMinutes,
		cfg.RequiresApproval, cfg.IsHoliday, cfg.IsRestDay,
		cfg.SuppressLateness, cfg.SuppressEarlyLeave, cfg.SuppressPenalties,
		dates, cfg.Condition,
	))
	if err != nil {
		return rule.Config{}, mapError(err, rule.ErrRuleNotFound.WithEntity("rule_config", cfg.ID))
	}
	return c, nil
}
