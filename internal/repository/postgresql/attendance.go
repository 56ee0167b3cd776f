package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

const recordColumns = `
	id, employee_id, date, punches, shift_id, corrected,
	status, worked_minutes, final_calculated_hours,
	lateness_minutes, early_leave_minutes, short_time_minutes, overtime_minutes,
	overtime_needs_approval, version, evaluated_at, created_at, updated_at`

type attendanceRecordRepository struct {
	db database.Pool
}

func NewAttendanceRecordRepository(db database.Pool) attendance.RecordRepository {
	return &attendanceRecordRepository{db: db}
}

func scanRecord(row pgx.Row) (*attendance.Record, error) {
	var (
		r       attendance.Record
		punches []byte
		status  string
		hours   decimal.NullDecimal
	)
	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Date, &punches, &r.ShiftID, &r.Corrected,
		&status, &r.WorkedMinutes, &hours,
		&r.LatenessMinutes, &r.EarlyLeaveMinutes, &r.ShortTimeMinutes, &r.OvertimeMinutes,
		&r.OvertimeNeedsApproval, &r.Version, &r.EvaluatedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = attendance.Status(status)
	if hours.Valid {
		h := hours.Decimal
		r.FinalCalculatedHours = &h
	}
	if len(punches) > 0 {
		if err := json.Unmarshal(punches, &r.Punches); err != nil {
			return nil, fmt.Errorf("failed to decode punches of record %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func (a *attendanceRecordRepository) queryRecords(ctx context.Context, query string, args ...any) ([]*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*attendance.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetByID implements attendance.RecordRepository.
func (a *attendanceRecordRepository) GetByID(ctx context.Context, id string) (*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE id = $1`
	r, err := scanRecord(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, attendance.ErrRecordNotFound.WithEntity("attendance_record", id))
	}
	return r, nil
}

// GetByEmployeeAndDate implements attendance.RecordRepository.
func (a *attendanceRecordRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE employee_id = $1 AND date = $2`
	r, err := scanRecord(q.QueryRow(ctx, query, employeeID, dateOnly(date)))
	if err != nil {
		return nil, mapError(err, attendance.ErrRecordNotFound.WithEntity("attendance_record", employeeID+"@"+date.Format(time.DateOnly)))
	}
	return r, nil
}

// GetOrCreate implements attendance.RecordRepository. Concurrent callers for
// the same (employee, date) converge on one row through the unique constraint.
func (a *attendanceRecordRepository) GetOrCreate(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		INSERT INTO attendance_records (id, employee_id, date, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT uq_attendance_records_employee_date
		DO UPDATE SET employee_id = EXCLUDED.employee_id
		RETURNING ` + recordColumns

	r, err := scanRecord(q.QueryRow(ctx, query, newID(), employeeID, dateOnly(date), string(attendance.StatusPending)))
	if err != nil {
		return nil, fmt.Errorf("failed to get or create attendance record: %w", mapError(err, nil))
	}
	return r, nil
}

// Update implements attendance.RecordRepository.
func (a *attendanceRecordRepository) Update(ctx context.Context, record *attendance.Record) error {
	q := GetQuerier(ctx, a.db)

	punches, err := json.Marshal(record.Punches)
	if err != nil {
		return fmt.Errorf("failed to encode punches: %w", err)
	}
	var hours decimal.NullDecimal
	if record.FinalCalculatedHours != nil {
		hours = decimal.NewNullDecimal(*record.FinalCalculatedHours)
	}

	query := `
		UPDATE attendance_records SET
			punches = $2, shift_id = $3, corrected = $4,
			status = $5, worked_minutes = $6, final_calculated_hours = $7,
			lateness_minutes = $8, early_leave_minutes = $9, short_time_minutes = $10, overtime_minutes = $11,
			overtime_needs_approval = $12, evaluated_at = $13,
			version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING version, updated_at`

	err = q.QueryRow(ctx, query,
		record.ID, punches, record.ShiftID, record.Corrected,
		string(record.Status), record.WorkedMinutes, hours,
		record.LatenessMinutes, record.EarlyLeaveMinutes, record.ShortTimeMinutes, record.OvertimeMinutes,
		record.OvertimeNeedsApproval, record.EvaluatedAt,
	).Scan(&record.Version, &record.UpdatedAt)
	if err != nil {
		return mapError(err, attendance.ErrRecordNotFound.WithEntity("attendance_record", record.ID))
	}
	return nil
}

// ListByEmployee implements attendance.RecordRepository.
func (a *attendanceRecordRepository) ListByEmployee(ctx context.Context, employeeID string, period attendance.Period) ([]*attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records
		WHERE employee_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date`
	records, err := a.queryRecords(ctx, query, employeeID, dateOnly(period.Start), dateOnly(period.End))
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}
	return records, nil
}

// ListByPeriod implements attendance.RecordRepository.
func (a *attendanceRecordRepository) ListByPeriod(ctx context.Context, period attendance.Period) ([]*attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records
		WHERE date BETWEEN $1 AND $2
		ORDER BY employee_id, date`
	records, err := a.queryRecords(ctx, query, dateOnly(period.Start), dateOnly(period.End))
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}
	return records, nil
}

type attendanceExceptionRepository struct {
	db database.Pool
}

func NewAttendanceExceptionRepository(db database.Pool) attendance.ExceptionRepository {
	return &attendanceExceptionRepository{db: db}
}

const exceptionColumns = `id, record_id, employee_id, date, type, resolved, resolved_by, resolved_at, created_at`

func (a *attendanceExceptionRepository) query(ctx context.Context, query string, args ...any) ([]attendance.Exception, error) {
	q := GetQuerier(ctx, a.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.Exception
	for rows.Next() {
		var (
			e  attendance.Exception
			tp string
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &e.EmployeeID, &e.Date, &tp, &e.Resolved, &e.ResolvedBy, &e.ResolvedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = attendance.ExceptionType(tp)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByRecord implements attendance.ExceptionRepository.
func (a *attendanceExceptionRepository) ListByRecord(ctx context.Context, recordID string) ([]attendance.Exception, error) {
	out, err := a.query(ctx, `SELECT `+exceptionColumns+` FROM attendance_exceptions WHERE record_id = $1 ORDER BY created_at, id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list record exceptions: %w", err)
	}
	if out == nil {
		out = []attendance.Exception{}
	}
	return out, nil
}

// InsertIfAbsent implements attendance.ExceptionRepository. The partial unique
// index on unresolved (record_id, type) makes the check and insert one statement.
func (a *attendanceExceptionRepository) InsertIfAbsent(ctx context.Context, e attendance.Exception) (bool, error) {
	q := GetQuerier(ctx, a.db)

	if e.ID == "" {
		e.ID = newID()
	}
	query := `
		INSERT INTO attendance_exceptions (id, record_id, employee_id, date, type, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		ON CONFLICT (record_id, type) WHERE NOT resolved DO NOTHING`

	tag, err := q.Exec(ctx, query, e.ID, e.RecordID, e.EmployeeID, dateOnly(e.Date), string(e.Type), e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert attendance exception: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnresolved implements attendance.ExceptionRepository.
func (a *attendanceExceptionRepository) ListUnresolved(ctx context.Context, employeeID string, period attendance.Period) ([]attendance.Exception, error) {
	query := `SELECT ` + exceptionColumns + ` FROM attendance_exceptions
		WHERE NOT resolved AND date BETWEEN $1 AND $2`
	args := []any{dateOnly(period.Start), dateOnly(period.End)}
	if employeeID != "" {
		query += ` AND employee_id = $3`
		args = append(args, employeeID)
	}
	query += ` ORDER BY date, type`

	out, err := a.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved exceptions: %w", err)
	}
	return out, nil
}

// Resolve implements attendance.ExceptionRepository.
func (a *attendanceExceptionRepository) Resolve(ctx context.Context, recordID string, exceptionType attendance.ExceptionType, resolvedBy string, resolvedAt time.Time) error {
	q := GetQuerier(ctx, a.db)

	query := `
		UPDATE attendance_exceptions
		SET resolved = TRUE, resolved_by = $3, resolved_at = $4
		WHERE record_id = $1 AND type = $2 AND NOT resolved`

	tag, err := q.Exec(ctx, query, recordID, string(exceptionType), resolvedBy, resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve attendance exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return attendance.ErrExceptionNotFound.WithEntity("attendance_record", recordID).WithField("type", string(exceptionType))
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
