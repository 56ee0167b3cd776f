package postgresql

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

type employeeDirectory struct {
	db database.Pool
}

// NewEmployeeDirectory reads the employees table as the employee.Directory.
func NewEmployeeDirectory(db database.Pool) employee.Directory {
	return &employeeDirectory{db: db}
}

// GetEmployee implements employee.Directory.
func (e *employeeDirectory) GetEmployee(ctx context.Context, id string) (*employee.Employee, error) {
	q := GetQuerier(ctx, e.db)

	query := `
		SELECT id, employee_code, full_name, pay_grade_ref, manager_id,
			   employment_status, scope, hire_date, resignation_date
		FROM employees
		WHERE id = $1
	`

	var (
		emp    employee.Employee
		status string
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&emp.ID, &emp.EmployeeCode, &emp.FullName, &emp.PayGradeRef, &emp.ManagerID,
		&status, &emp.Scope, &emp.HireDate, &emp.ResignationDate,
	)
	if err != nil {
		return nil, mapError(err, employee.ErrEmployeeNotFound.WithEntity("employee", id))
	}
	emp.EmploymentStatus = employee.EmploymentStatus(status)
	return &emp, nil
}

// ListActiveIDs implements employee.Directory.
func (e *employeeDirectory) ListActiveIDs(ctx context.Context) ([]string, error) {
	q := GetQuerier(ctx, e.db)

	query := `
		SELECT id FROM employees
		WHERE employment_status IN ($1, $2)
		ORDER BY employee_code
	`

	rows, err := q.Query(ctx, query, string(employee.StatusActive), string(employee.StatusProbation))
	if err != nil {
		return nil, fmt.Errorf("failed to list active employees: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan employee id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list active employees: %w", err)
	}
	return ids, nil
}
