package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/metrics"
)

// aggregateConcurrency bounds how many employees AggregateAll prices at once.
const aggregateConcurrency = 8

type AggregatorImpl struct {
	directory employee.Directory
	ledger    attendance.Ledger
	records   attendance.RecordRepository
	configs   payroll.ConfigRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewAggregator(
	directory employee.Directory,
	ledger attendance.Ledger,
	records attendance.RecordRepository,
	configs payroll.ConfigRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AggregatorImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &AggregatorImpl{
		directory: directory,
		ledger:    ledger,
		records:   records,
		configs:   configs,
		metrics:   m,
		logger:    logger.With("component", "payroll_aggregator"),
	}
}

// Aggregate implements payroll.Aggregator.
func (a *AggregatorImpl) Aggregate(ctx context.Context, employeeID string, period payroll.Period) (payroll.Line, error) {
	book, err := a.loadConfigs(ctx)
	if err != nil {
		return payroll.Line{}, err
	}
	return a.aggregate(ctx, book, employeeID, period)
}

// AggregateAll implements payroll.Aggregator. Lines come back in input order;
// the first failing employee aborts the batch.
func (a *AggregatorImpl) AggregateAll(ctx context.Context, employeeIDs []string, period payroll.Period) ([]payroll.Line, error) {
	book, err := a.loadConfigs(ctx)
	if err != nil {
		return nil, err
	}

	lines := make([]payroll.Line, len(employeeIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(aggregateConcurrency)
	for i, id := range employeeIDs {
		g.Go(func() error {
			line, err := a.aggregate(gctx, book, id, period)
			if err != nil {
				return err
			}
			lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (a *AggregatorImpl) loadConfigs(ctx context.Context) (*configBook, error) {
	approved, err := a.configs.ListApproved(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load approved payroll configuration: %w", err)
	}
	return newConfigBook(approved), nil
}

func (a *AggregatorImpl) aggregate(ctx context.Context, book *configBook, employeeID string, period payroll.Period) (payroll.Line, error) {
	line, err := a.price(ctx, book, employeeID, period)
	if err != nil {
		a.metrics.IncAggregatedLine(string(apperror.CodeOf(err)))
		return payroll.Line{}, err
	}
	if len(line.Exceptions) > 0 {
		a.metrics.IncAggregatedLine("flagged")
	} else {
		a.metrics.IncAggregatedLine("ok")
	}
	return line, nil
}

func (a *AggregatorImpl) price(ctx context.Context, book *configBook, employeeID string, period payroll.Period) (payroll.Line, error) {
	emp, err := a.directory.GetEmployee(ctx, employeeID)
	if err != nil {
		return payroll.Line{}, err
	}
	if emp.PayGradeRef == nil || *emp.PayGradeRef == "" {
		return payroll.Line{}, payroll.ErrMissingPayGrade.WithEntity("employee", employeeID)
	}
	grade := book.payGrade(*emp.PayGradeRef)
	if grade == nil {
		return payroll.Line{}, payroll.ErrMissingPayGrade.WithEntity("employee", employeeID).
			WithField("pay_grade_ref", *emp.PayGradeRef)
	}

	attPeriod := attendance.Period(period)
	open, err := a.ledger.ListUnresolved(ctx, employeeID, attPeriod)
	if err != nil {
		return payroll.Line{}, err
	}
	if len(open) > 0 {
		return payroll.Line{}, payroll.ErrIncompleteAttendance.WithEntity("employee", employeeID).
			WithField("dates", exceptionDates(open)).
			WithField("count", strconv.Itoa(len(open)))
	}

	records, err := a.records.ListByEmployee(ctx, employeeID, attPeriod)
	if err != nil {
		return payroll.Line{}, fmt.Errorf("failed to list attendance records: %w", err)
	}
	att := summarize(records)

	line := payroll.Line{
		EmployeeID:      employeeID,
		PayGradeRef:     grade.Code,
		WorkedHours:     att.hours.Round(moneyPlaces),
		OvertimeMinutes: att.overtimeMinutes,
		LatenessMinutes: att.latenessMinutes,
		AbsentDays:      att.absentDays,
	}

	// Base salary and hourly rate
	base := grade.Amount
	hourly := grade.Amount.Div(standardMonthlyHours)
	if pt := book.payType(grade.Code); pt != nil {
		switch pt.PayType {
		case payroll.PayHourly:
			base = pt.Amount.Mul(att.hours)
			hourly = pt.Amount
		case payroll.PayDaily:
			base = pt.Amount.Mul(decimal.NewFromInt(int64(att.workedDays)))
			hourly = pt.Amount.Div(standardDailyHours)
		}
	}
	line.BaseSalary = roundMoney(base)
	line.Items = append(line.Items, payroll.LineItem{Kind: payroll.ItemBase, ConfigID: grade.ID, Name: grade.Name, Amount: line.BaseSalary})

	add := func(kind payroll.ItemKind, cfg *payroll.ConfigEntity, name string, amount decimal.Decimal) decimal.Decimal {
		amount = roundMoney(amount)
		if amount.IsZero() {
			return amount
		}
		line.Items = append(line.Items, payroll.LineItem{Kind: kind, ConfigID: cfg.ID, Name: name, Amount: amount})
		return amount
	}

	// Allowances
	allowances := decimal.Zero
	for _, c := range book.applicable(payroll.KindAllowance, employeeID, period) {
		allowances = allowances.Add(add(payroll.ItemAllowance, c, c.Name, c.Amount))
	}

	// Bonuses: overtime pay, signing bonus, separation benefit
	bonuses := decimal.Zero
	if ot := book.policy(payroll.PolicyOvertime, employeeID, period); ot != nil && att.overtimeMinutes > 0 {
		pay := minutesToHours(att.overtimeMinutes).Mul(hourly).Mul(ot.Rate)
		bonuses = bonuses.Add(add(payroll.ItemBonus, ot, ot.Name, pay))
	}
	for _, kind := range []payroll.ConfigKind{payroll.KindSigningBonus, payroll.KindSeparation} {
		for _, c := range book.applicable(kind, employeeID, period) {
			if c.EffectiveDate == nil {
				continue
			}
			bonuses = bonuses.Add(add(payroll.ItemBonus, c, c.Name, c.Amount))
		}
	}

	// Penalties
	penalties := decimal.Zero
	if p := book.policy(payroll.PolicyLateness, employeeID, period); p != nil && att.latenessMinutes > 0 {
		amount := decimal.NewFromInt(int64(att.latenessMinutes)).Mul(p.Amount)
		penalties = penalties.Add(add(payroll.ItemPenalty, p, p.Name, amount))
	}
	if p := book.policy(payroll.PolicyAbsence, employeeID, period); p != nil && att.absentDays > 0 {
		amount := decimal.NewFromInt(int64(att.absentDays)).Mul(p.Amount)
		penalties = penalties.Add(add(payroll.ItemPenalty, p, p.Name, amount))
	}
	for _, c := range book.applicable(payroll.KindPolicy, employeeID, period) {
		if c.PolicyType == payroll.PolicyPenalty {
			penalties = penalties.Add(add(payroll.ItemPenalty, c, c.Name, c.Amount))
		}
	}

	line.Allowances = allowances
	line.Bonuses = bonuses
	line.Penalties = penalties
	line.Gross = line.BaseSalary.Add(allowances).Add(bonuses).Sub(penalties)

	// Taxes
	taxes := decimal.Zero
	for _, c := range book.applicable(payroll.KindTaxRule, employeeID, period) {
		taxable := decimal.Max(line.Gross.Sub(c.Exemption), decimal.Zero)
		taxes = taxes.Add(add(payroll.ItemTax, c, c.Name, progressiveTax(taxable, c.Brackets)))
	}

	// Insurance
	insurance := decimal.Zero
	for _, c := range book.applicable(payroll.KindInsuranceBracket, employeeID, period) {
		insurance = insurance.Add(add(payroll.ItemInsurance, c, c.Name, insuranceContribution(line.Gross, c.Brackets)))
	}

	line.Taxes = taxes
	line.Insurance = insurance
	line.Net = line.Gross.Sub(taxes).Sub(insurance)

	if line.Net.IsNegative() {
		line.Exceptions = append(line.Exceptions, payroll.LineExceptionNegativeNetPay)
	}
	if emp.EmploymentStatus == employee.StatusSuspended {
		line.Exceptions = append(line.Exceptions, payroll.LineExceptionInactiveEmployee)
	}
	if len(line.Exceptions) > 0 {
		a.logger.WarnContext(ctx, "payroll line flagged",
			"employee_id", employeeID,
			"period", period.String(),
			"exceptions", line.Exceptions,
		)
	}
	return line, nil
}

type attendanceSummary struct {
	hours           decimal.Decimal
	workedDays      int
	overtimeMinutes int
	latenessMinutes int
	absentDays      int
}

// summarize folds evaluated records. Records never evaluated are ignored.
func summarize(records []*attendance.Record) attendanceSummary {
	s := attendanceSummary{hours: decimal.Zero}
	for _, r := range records {
		if r.Status == attendance.StatusPending {
			continue
		}
		if r.Status == attendance.StatusAbsent {
			s.absentDays++
			continue
		}
		if r.FinalCalculatedHours != nil && r.FinalCalculatedHours.IsPositive() {
			s.hours = s.hours.Add(*r.FinalCalculatedHours)
			s.workedDays++
		}
		if r.OvertimeMinutes != nil {
			s.overtimeMinutes += *r.OvertimeMinutes
		}
		if r.LatenessMinutes != nil {
			s.latenessMinutes += *r.LatenessMinutes
		}
	}
	return s
}

func exceptionDates(exs []attendance.Exception) string {
	seen := make(map[string]bool)
	var dates []string
	for _, e := range exs {
		d := e.Date.Format("2006-01-02")
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return strings.Join(dates, ",")
}

// configBook indexes approved configuration by kind.
type configBook struct {
	byKind map[payroll.ConfigKind][]*payroll.ConfigEntity
}

func newConfigBook(approved []*payroll.ConfigEntity) *configBook {
	b := &configBook{byKind: make(map[payroll.ConfigKind][]*payroll.ConfigEntity)}
	for _, c := range approved {
		if c.Status != payroll.ConfigApproved {
			continue
		}
		b.byKind[c.Kind] = append(b.byKind[c.Kind], c)
	}
	for _, list := range b.byKind {
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return b
}

func (b *configBook) payGrade(code string) *payroll.ConfigEntity {
	for _, c := range b.byKind[payroll.KindPayGrade] {
		if c.Code == code {
			return c
		}
	}
	return nil
}

func (b *configBook) payType(gradeCode string) *payroll.ConfigEntity {
	for _, c := range b.byKind[payroll.KindPayType] {
		if c.Code == gradeCode {
			return c
		}
	}
	return nil
}

func (b *configBook) applicable(kind payroll.ConfigKind, employeeID string, period payroll.Period) []*payroll.ConfigEntity {
	var out []*payroll.ConfigEntity
	for _, c := range b.byKind[kind] {
		if c.AppliesTo(employeeID) && c.EffectiveIn(period) {
			out = append(out, c)
		}
	}
	return out
}

// policy returns the employee-specific policy of type t, falling back to the global one.
func (b *configBook) policy(t payroll.PolicyType, employeeID string, period payroll.Period) *payroll.ConfigEntity {
	var global *payroll.ConfigEntity
	for _, c := range b.applicable(payroll.KindPolicy, employeeID, period) {
		if c.PolicyType != t {
			continue
		}
		if c.EmployeeID != nil {
			return c
		}
		if global == nil {
			global = c
		}
	}
	return global
}
