package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

const configColumns = `
	id, kind, name, code, employee_id, amount, rate, exemption, pay_type, policy_type,
	brackets, effective_date, status, created_by, approved_by, approved_at, rejection_reason,
	version, created_at, updated_at`

type payrollConfigRepository struct {
	db database.Pool
}

func NewPayrollConfigRepository(db database.Pool) payroll.ConfigRepository {
	return &payrollConfigRepository{db: db}
}

func scanConfig(row pgx.Row) (*payroll.ConfigEntity, error) {
	var (
		c          payroll.ConfigEntity
		kind       string
		payType    string
		policyType string
		status     string
		brackets   []byte
	)
	err := row.Scan(
		&c.ID, &kind, &c.Name, &c.Code, &c.EmployeeID, &c.Amount, &c.Rate, &c.Exemption, &payType, &policyType,
		&brackets, &c.EffectiveDate, &status, &c.CreatedBy, &c.ApprovedBy, &c.ApprovedAt, &c.RejectionReason,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Kind = payroll.ConfigKind(kind)
	c.PayType = payroll.PayTypeKind(payType)
	c.PolicyType = payroll.PolicyType(policyType)
	c.Status = payroll.ConfigStatus(status)
	if len(brackets) > 0 {
		if err := json.Unmarshal(brackets, &c.Brackets); err != nil {
			return nil, fmt.Errorf("failed to decode brackets of config %s: %w", c.ID, err)
		}
	}
	if len(c.Brackets) == 0 {
		c.Brackets = nil
	}
	return &c, nil
}

func encodeBrackets(bs []payroll.Bracket) ([]byte, error) {
	if bs == nil {
		bs = []payroll.Bracket{}
	}
	out, err := json.Marshal(bs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode brackets: %w", err)
	}
	return out, nil
}

func (p *payrollConfigRepository) queryConfigs(ctx context.Context, query string, args ...any) ([]*payroll.ConfigEntity, error) {
	q := GetQuerier(ctx, p.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*payroll.ConfigEntity, 0)
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create implements payroll.ConfigRepository.
func (p *payrollConfigRepository) Create(ctx context.Context, cfg *payroll.ConfigEntity) error {
	q := GetQuerier(ctx, p.db)

	if cfg.ID == "" {
		cfg.ID = newID()
	}
	brackets, err := encodeBrackets(cfg.Brackets)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payroll_configs (
			id, kind, name, code, employee_id, amount, rate, exemption, pay_type, policy_type,
			brackets, effective_date, status, created_by, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = q.Exec(ctx, query,
		cfg.ID, string(cfg.Kind), cfg.Name, cfg.Code, cfg.EmployeeID, cfg.Amount, cfg.Rate, cfg.Exemption,
		string(cfg.PayType), string(cfg.PolicyType), brackets, cfg.EffectiveDate, string(cfg.Status), cfg.CreatedBy,
		cfg.Version, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payroll configuration: %w", mapError(err, nil))
	}
	return nil
}

// GetByID implements payroll.ConfigRepository.
func (p *payrollConfigRepository) GetByID(ctx context.Context, id string) (*payroll.ConfigEntity, error) {
	q := GetQuerier(ctx, p.db)

	c, err := scanConfig(q.QueryRow(ctx, `SELECT `+configColumns+` FROM payroll_configs WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, payroll.ErrConfigNotFound.WithEntity("payroll_config", id))
	}
	return c, nil
}

// List implements payroll.ConfigRepository.
func (p *payrollConfigRepository) List(ctx context.Context, filter payroll.ConfigFilter) ([]*payroll.ConfigEntity, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Kind != nil {
		args = append(args, string(*filter.Kind))
		conds = append(conds, "kind = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.EmployeeID != nil {
		args = append(args, *filter.EmployeeID)
		conds = append(conds, "employee_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + configColumns + ` FROM payroll_configs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY kind, created_at DESC`

	out, err := p.queryConfigs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll configurations: %w", err)
	}
	return out, nil
}

// UpdateDraft implements payroll.ConfigRepository.
func (p *payrollConfigRepository) UpdateDraft(ctx context.Context, cfg *payroll.ConfigEntity, expectedVersion int) error {
	q := GetQuerier(ctx, p.db)

	brackets, err := encodeBrackets(cfg.Brackets)
	if err != nil {
		return err
	}

	query := `
		UPDATE payroll_configs SET
			kind = $3, name = $4, code = $5, employee_id = $6, amount = $7, rate = $8, exemption = $9,
			pay_type = $10, policy_type = $11, brackets = $12, effective_date = $13,
			updated_at = $14, version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'DRAFT'
		RETURNING version
	`
	var version int
	err = q.QueryRow(ctx, query,
		cfg.ID, expectedVersion,
		string(cfg.Kind), cfg.Name, cfg.Code, cfg.EmployeeID, cfg.Amount, cfg.Rate, cfg.Exemption,
		string(cfg.PayType), string(cfg.PolicyType), brackets, cfg.EffectiveDate, cfg.UpdatedAt,
	).Scan(&version)
	if err == nil {
		cfg.Version = version
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to update payroll configuration: %w", err)
	}

	var (
		status  string
		current int
	)
	err = q.QueryRow(ctx, `SELECT status, version FROM payroll_configs WHERE id = $1`, cfg.ID).Scan(&status, &current)
	if err != nil {
		return mapError(err, payroll.ErrConfigNotFound.WithEntity("payroll_config", cfg.ID))
	}
	if payroll.ConfigStatus(status) != payroll.ConfigDraft {
		return payroll.ErrConfigNotEditable.WithEntity("payroll_config", cfg.ID).WithStates(string(payroll.ConfigDraft), status)
	}
	return payroll.ErrConfigVersionMismatch.
		WithEntity("payroll_config", cfg.ID).
		WithStates(strconv.Itoa(expectedVersion), strconv.Itoa(current))
}

// UpdateStatus implements payroll.ConfigRepository. Status, author and
// decision are checked and written by one statement, so of several concurrent
// approvers exactly one wins.
func (p *payrollConfigRepository) UpdateStatus(ctx context.Context, id string, status payroll.ConfigStatus, approverID string, reason *string, at time.Time) (*payroll.ConfigEntity, error) {
	q := GetQuerier(ctx, p.db)

	query := `
		UPDATE payroll_configs SET
			status = $2, approved_by = $3, approved_at = $4, rejection_reason = $5,
			updated_at = $4, version = version + 1
		WHERE id = $1 AND status = 'DRAFT' AND created_by <> $3
		RETURNING ` + configColumns

	c, err := scanConfig(q.QueryRow(ctx, query, id, string(status), approverID, at, reason))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update payroll configuration status: %w", err)
	}

	var (
		current   string
		createdBy string
	)
	err = q.QueryRow(ctx, `SELECT status, created_by FROM payroll_configs WHERE id = $1`, id).Scan(&current, &createdBy)
	if err != nil {
		return nil, mapError(err, payroll.ErrConfigNotFound.WithEntity("payroll_config", id))
	}
	if payroll.ConfigStatus(current) != payroll.ConfigDraft {
		return nil, payroll.ErrConfigNotDraft.WithEntity("payroll_config", id).WithStates(string(payroll.ConfigDraft), current)
	}
	return nil, payroll.ErrConfigSelfApproval.WithEntity("payroll_config", id)
}

// ListApproved implements payroll.ConfigRepository.
func (p *payrollConfigRepository) ListApproved(ctx context.Context) ([]*payroll.ConfigEntity, error) {
	out, err := p.queryConfigs(ctx, `SELECT `+configColumns+` FROM payroll_configs WHERE status = $1 ORDER BY kind, created_at`, string(payroll.ConfigApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to list approved payroll configurations: %w", err)
	}
	return out, nil
}
