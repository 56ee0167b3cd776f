package notification

import (
	"time"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	TypePayrollSubmitted      NotificationType = "payroll_submitted"
	TypePayrollApproved       NotificationType = "payroll_approved"
	TypePayrollRejected       NotificationType = "payroll_rejected"
	TypePayrollFinanceReview  NotificationType = "payroll_finance_review"
	TypePayrollFrozen         NotificationType = "payroll_frozen"
	TypePayrollUnfrozen       NotificationType = "payroll_unfrozen"
	TypePayrollPaid           NotificationType = "payroll_paid"
	TypePayslipAvailable      NotificationType = "payslip_available"
	TypeAttendanceException   NotificationType = "attendance_exception"
	TypePayrollConfigReviewed NotificationType = "payroll_config_reviewed"
)

// DeliveryStatus tracks out-of-band delivery. Failed deliveries are retried by a background job.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Notification represents a notification entity
type Notification struct {
	ID              string
	RecipientID     string
	SenderID        *string
	Type            NotificationType
	Title           string
	Message         string
	RelatedEntityID string
	Data            map[string]interface{}
	DeliveryStatus  DeliveryStatus
	Attempts        int
	LastError       *string
	CreatedAt       time.Time
	DeliveredAt     *time.Time
}
