package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

const runColumns = `
	id, period_start, period_end, status, frozen, employee_ids, lines, exceptions,
	total_net_pay, payroll_specialist_id, payment_status, payroll_manager_id, finance_staff_id,
	rejection_reason, freeze_reason, unlock_reason,
	manager_approval_date, finance_approval_date, paid_at,
	approval_cycle, approval_history, version, created_at, updated_at`

type payrollRunRepository struct {
	db database.Pool
}

func NewPayrollRunRepository(db database.Pool) payroll.RunRepository {
	return &payrollRunRepository{db: db}
}

// runDocuments holds the jsonb columns of a run.
type runDocuments struct {
	employeeIDs []byte
	lines       []byte
	exceptions  []byte
	history     []byte
}

func encodeRunDocuments(run *payroll.Run) (runDocuments, error) {
	var (
		d   runDocuments
		err error
	)
	if d.employeeIDs, err = json.Marshal(nonNil(run.EmployeeIDs)); err != nil {
		return d, fmt.Errorf("failed to encode employee ids: %w", err)
	}
	lines := run.Lines
	if lines == nil {
		lines = []payroll.Line{}
	}
	if d.lines, err = json.Marshal(lines); err != nil {
		return d, fmt.Errorf("failed to encode lines: %w", err)
	}
	if d.exceptions, err = json.Marshal(nonNil(run.Exceptions)); err != nil {
		return d, fmt.Errorf("failed to encode exceptions: %w", err)
	}
	history := run.ApprovalHistory
	if history == nil {
		history = []payroll.ApprovalRecord{}
	}
	if d.history, err = json.Marshal(history); err != nil {
		return d, fmt.Errorf("failed to encode approval history: %w", err)
	}
	return d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanRun(row pgx.Row) (*payroll.Run, error) {
	var (
		r             payroll.Run
		docs          runDocuments
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&r.ID, &r.Period.Start, &r.Period.End, &status, &r.Frozen, &docs.employeeIDs, &docs.lines, &docs.exceptions,
		&r.TotalNetPay, &r.PayrollSpecialistID, &paymentStatus, &r.PayrollManagerID, &r.FinanceStaffID,
		&r.RejectionReason, &r.FreezeReason, &r.UnlockReason,
		&r.ManagerApprovalDate, &r.FinanceApprovalDate, &r.PaidAt,
		&r.ApprovalCycle, &docs.history, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = payroll.Status(status)
	r.PaymentStatus = payroll.PaymentStatus(paymentStatus)

	if err := json.Unmarshal(docs.employeeIDs, &r.EmployeeIDs); err != nil {
		return nil, fmt.Errorf("failed to decode employee ids of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(docs.lines, &r.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode lines of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(docs.exceptions, &r.Exceptions); err != nil {
		return nil, fmt.Errorf("failed to decode exceptions of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(docs.history, &r.ApprovalHistory); err != nil {
		return nil, fmt.Errorf("failed to decode approval history of run %s: %w", r.ID, err)
	}
	if len(r.Lines) == 0 {
		r.Lines = nil
	}
	if len(r.ApprovalHistory) == 0 {
		r.ApprovalHistory = nil
	}
	return &r, nil
}

// Create implements payroll.RunRepository.
func (p *payrollRunRepository) Create(ctx context.Context, run *payroll.Run) error {
	q := GetQuerier(ctx, p.db)

	docs, err := encodeRunDocuments(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payroll_runs (
			id, period_start, period_end, status, frozen, employee_ids, lines, exceptions,
			total_net_pay, payroll_specialist_id, payment_status,
			approval_cycle, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = q.Exec(ctx, query,
		run.ID, run.Period.Start, run.Period.End, string(run.Status), run.Frozen,
		docs.employeeIDs, docs.lines, docs.exceptions,
		run.TotalNetPay, run.PayrollSpecialistID, string(run.PaymentStatus),
		run.ApprovalCycle, run.Version, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payroll run: %w", mapError(err, nil))
	}
	return nil
}

// GetByID implements payroll.RunRepository.
func (p *payrollRunRepository) GetByID(ctx context.Context, id string) (*payroll.Run, error) {
	q := GetQuerier(ctx, p.db)

	run, err := scanRun(q.QueryRow(ctx, `SELECT `+runColumns+` FROM payroll_runs WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, payroll.ErrRunNotFound.WithEntity("payroll_run", id))
	}
	return run, nil
}

// List implements payroll.RunRepository.
func (p *payrollRunRepository) List(ctx context.Context, filter payroll.RunFilter) ([]*payroll.Run, error) {
	q := GetQuerier(ctx, p.db)

	var (
		conds []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.From != nil {
		args = append(args, dateOnly(*filter.From))
		conds = append(conds, "period_end >= $"+strconv.Itoa(len(args)))
	}
	if filter.To != nil {
		args = append(args, dateOnly(*filter.To))
		conds = append(conds, "period_start <= $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + runColumns + ` FROM payroll_runs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY period_start DESC, created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*payroll.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payroll runs: %w", err)
	}
	return runs, nil
}

// Update implements payroll.RunRepository. The version predicate turns the
// write into a compare-and-swap.
func (p *payrollRunRepository) Update(ctx context.Context, run *payroll.Run, expectedVersion int) error {
	q := GetQuerier(ctx, p.db)

	docs, err := encodeRunDocuments(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE payroll_runs SET
			period_start = $3, period_end = $4, status = $5, frozen = $6,
			employee_ids = $7, lines = $8, exceptions = $9, total_net_pay = $10,
			payment_status = $11, payroll_manager_id = $12, finance_staff_id = $13,
			rejection_reason = $14, freeze_reason = $15, unlock_reason = $16,
			manager_approval_date = $17, finance_approval_date = $18, paid_at = $19,
			approval_cycle = $20, approval_history = $21, updated_at = $22,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`
	var version int
	err = q.QueryRow(ctx, query,
		run.ID, expectedVersion,
		run.Period.Start, run.Period.End, string(run.Status), run.Frozen,
		docs.employeeIDs, docs.lines, docs.exceptions, run.TotalNetPay,
		string(run.PaymentStatus), run.PayrollManagerID, run.FinanceStaffID,
		run.RejectionReason, run.FreezeReason, run.UnlockReason,
		run.ManagerApprovalDate, run.FinanceApprovalDate, run.PaidAt,
		run.ApprovalCycle, docs.history, run.UpdatedAt,
	).Scan(&version)
	if err == nil {
		run.Version = version
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to update payroll run: %w", err)
	}

	// Distinguish a missing run from a stale version.
	var current int
	err = q.QueryRow(ctx, `SELECT version FROM payroll_runs WHERE id = $1`, run.ID).Scan(&current)
	if err != nil {
		return mapError(err, payroll.ErrRunNotFound.WithEntity("payroll_run", run.ID))
	}
	return payroll.ErrConcurrentModification.
		WithEntity("payroll_run", run.ID).
		WithStates(strconv.Itoa(expectedVersion), strconv.Itoa(current))
}

// AppendAudit implements payroll.RunRepository.
func (p *payrollRunRepository) AppendAudit(ctx context.Context, entry payroll.AuditEntry) error {
	q := GetQuerier(ctx, p.db)

	if entry.ID == "" {
		entry.ID = newID()
	}
	var from *string
	if entry.FromStatus != "" {
		s := string(entry.FromStatus)
		from = &s
	}

	query := `
		INSERT INTO payroll_run_audit (
			id, run_id, event, actor_id, actor_role, from_status, to_status,
			was_frozen, is_frozen, reason, version, at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := q.Exec(ctx, query,
		entry.ID, entry.RunID, string(entry.Event), entry.ActorID, entry.ActorRole, from, string(entry.ToStatus),
		entry.WasFrozen, entry.IsFrozen, entry.Reason, entry.Version, entry.At,
	)
	if err != nil {
		return fmt.Errorf("failed to append payroll audit entry: %w", mapError(err, nil))
	}
	return nil
}

// ListAudit implements payroll.RunRepository.
func (p *payrollRunRepository) ListAudit(ctx context.Context, runID string) ([]payroll.AuditEntry, error) {
	q := GetQuerier(ctx, p.db)

	query := `
		SELECT id, run_id, event, actor_id, actor_role, from_status, to_status,
			   was_frozen, is_frozen, reason, version, at
		FROM payroll_run_audit
		WHERE run_id = $1
		ORDER BY version
	`
	rows, err := q.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll audit: %w", err)
	}
	defer rows.Close()

	entries := make([]payroll.AuditEntry, 0)
	for rows.Next() {
		var (
			e        payroll.AuditEntry
			event    string
			from     *string
			toStatus string
		)
		if err := rows.Scan(
			&e.ID, &e.RunID, &event, &e.ActorID, &e.ActorRole, &from, &toStatus,
			&e.WasFrozen, &e.IsFrozen, &e.Reason, &e.Version, &e.At,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payroll audit entry: %w", err)
		}
		e.Event = payroll.Event(event)
		e.ToStatus = payroll.Status(toStatus)
		if from != nil {
			e.FromStatus = payroll.Status(*from)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payroll audit: %w", err)
	}
	return entries, nil
}

type payslipRepository struct {
	db database.Pool
}

func NewPayslipRepository(db database.Pool) payroll.PayslipRepository {
	return &payslipRepository{db: db}
}

// CreateBatch implements payroll.PayslipRepository. All rows go in one pgx batch.
func (p *payslipRepository) CreateBatch(ctx context.Context, payslips []payroll.Payslip) error {
	if len(payslips) == 0 {
		return nil
	}
	q := GetQuerier(ctx, p.db)

	query := `
		INSERT INTO payslips (id, run_id, employee_id, period_start, period_end, line, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	batch := &pgx.Batch{}
	for _, ps := range payslips {
		line, err := json.Marshal(ps.Line)
		if err != nil {
			return fmt.Errorf("failed to encode payslip line: %w", err)
		}
		batch.Queue(query, ps.ID, ps.RunID, ps.EmployeeID, ps.Period.Start, ps.Period.End, line, string(ps.PaymentStatus), ps.CreatedAt)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()
	for range payslips {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to create payslips: %w", mapError(err, nil))
		}
	}
	return nil
}

func scanPayslip(row pgx.Row) (*payroll.Payslip, error) {
	var (
		ps     payroll.Payslip
		line   []byte
		status string
	)
	if err := row.Scan(&ps.ID, &ps.RunID, &ps.EmployeeID, &ps.Period.Start, &ps.Period.End, &line, &status, &ps.CreatedAt); err != nil {
		return nil, err
	}
	ps.PaymentStatus = payroll.PaymentStatus(status)
	if err := json.Unmarshal(line, &ps.Line); err != nil {
		return nil, fmt.Errorf("failed to decode payslip %s: %w", ps.ID, err)
	}
	return &ps, nil
}

const payslipColumns = `id, run_id, employee_id, period_start, period_end, line, payment_status, created_at`

// GetByID implements payroll.PayslipRepository.
func (p *payslipRepository) GetByID(ctx context.Context, id string) (*payroll.Payslip, error) {
	q := GetQuerier(ctx, p.db)

	ps, err := scanPayslip(q.QueryRow(ctx, `SELECT `+payslipColumns+` FROM payslips WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, payroll.ErrPayslipNotFound.WithEntity("payslip", id))
	}
	return ps, nil
}

// ListByRun implements payroll.PayslipRepository.
func (p *payslipRepository) ListByRun(ctx context.Context, runID string) ([]payroll.Payslip, error) {
	q := GetQuerier(ctx, p.db)

	rows, err := q.Query(ctx, `SELECT `+payslipColumns+` FROM payslips WHERE run_id = $1 ORDER BY employee_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payslips: %w", err)
	}
	defer rows.Close()

	out := make([]payroll.Payslip, 0)
	for rows.Next() {
		ps, err := scanPayslip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payslip: %w", err)
		}
		out = append(out, *ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payslips: %w", err)
	}
	return out, nil
}
