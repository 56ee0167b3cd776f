package payroll

import "time"

// Payslip is an immutable snapshot of a line taken when the run is finalized.
// Only PaymentStatus is advanced later, by the payment processor.
type Payslip struct {
	ID            string
	RunID         string
	EmployeeID    string
	Period        Period
	Line          Line
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
}
