package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
)

type FinalizerImpl struct {
	payslips payroll.PayslipRepository
	now      func() time.Time
}

func NewFinalizer(payslips payroll.PayslipRepository) *FinalizerImpl {
	return &FinalizerImpl{
		payslips: payslips,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Finalize implements payroll.Finalizer. Each payslip holds its own copy of the
// line, so later configuration or run edits never reach it.
func (f *FinalizerImpl) Finalize(ctx context.Context, run *payroll.Run) ([]payroll.Payslip, error) {
	if run.Status != payroll.StatusPaid {
		return nil, payroll.ErrInvalidTransition.WithEntity("payroll_run", run.ID).
			WithStates(string(payroll.StatusPaid), string(run.Status))
	}

	now := f.now()
	slips := make([]payroll.Payslip, 0, len(run.Lines))
	for _, line := range run.Lines {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate payslip id: %w", err)
		}
		slips = append(slips, payroll.Payslip{
			ID:            id.String(),
			RunID:         run.ID,
			EmployeeID:    line.EmployeeID,
			Period:        run.Period,
			Line:          line.Clone(),
			PaymentStatus: payroll.PaymentPending,
			CreatedAt:     now,
		})
	}

	if err := f.payslips.CreateBatch(ctx, slips); err != nil {
		return nil, fmt.Errorf("failed to store payslips: %w", err)
	}
	return slips, nil
}
