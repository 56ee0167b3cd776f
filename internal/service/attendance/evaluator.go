package attendance

import (
	"fmt"
	"math"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/ruleexpr"
	"github.com/shopspring/decimal"
)

// DayMatcher decides whether a CEL day condition holds.
type DayMatcher interface {
	Eval(expr string, dc ruleexpr.DayContext) (bool, error)
}

type interval struct {
	in, out time.Time
}

// dayState is the working set the policies read and write.
type dayState struct {
	record *attendance.Record
	rules  rule.Set

	hasShift   bool
	shiftStart time.Time
	shiftEnd   time.Time

	punchCount int
	intervals  []interval
	openIn     *time.Time
	firstIn    *time.Time
	lastOut    *time.Time

	// open is set while punches for the day can still arrive.
	open bool

	facts attendance.Facts
}

// closesAt is when the day stops taking punches: midnight after the record
// date, or the shift end when an overnight shift runs past it.
func (s *dayState) closesAt() time.Time {
	end := s.record.Date.AddDate(0, 0, 1)
	if s.hasShift && s.shiftEnd.After(end) {
		end = s.shiftEnd
	}
	return end
}

func (s *dayState) complete() bool {
	return s.openIn == nil && len(s.intervals) > 0
}

// policy is one step of evaluation. Policies run in list order; later policies
// see what earlier ones wrote, so the order is the precedence.
type policy struct {
	name  string
	apply func(e *Evaluator, s *dayState) error
}

// statusRule maps day facts to a status. The first matching rule wins.
type statusRule struct {
	status attendance.Status
	when   func(s *dayState) bool
}

var defaultPolicies = []policy{
	{name: "pair_punches", apply: pairPunches},
	{name: "classify_day", apply: classifyDay},
	{name: "lateness", apply: measureLateness},
	{name: "early_leave", apply: measureEarlyLeave},
	{name: "short_time", apply: measureShortTime},
	{name: "overtime", apply: measureOvertime},
	{name: "day_suppression", apply: applyDaySuppression},
	{name: "exceptions", apply: detectExceptions},
}

var defaultStatusRules = []statusRule{
	{attendance.StatusMissingPunch, func(s *dayState) bool { return s.openIn != nil }},
	{attendance.StatusHoliday, func(s *dayState) bool { return s.facts.DayKind == attendance.DayHoliday }},
	{attendance.StatusRestDay, func(s *dayState) bool { return s.facts.DayKind == attendance.DayRestDay }},
	{attendance.StatusAbsent, func(s *dayState) bool { return s.punchCount == 0 }},
	{attendance.StatusLate, func(s *dayState) bool { return positive(s.facts.LatenessMinutes) }},
	{attendance.StatusEarlyLeave, func(s *dayState) bool { return positive(s.facts.EarlyLeaveMinutes) }},
	{attendance.StatusShortTime, func(s *dayState) bool { return positive(s.facts.ShortTimeMinutes) }},
	{attendance.StatusOvertime, func(s *dayState) bool { return positive(s.facts.OvertimeMinutes) }},
	{attendance.StatusPresent, func(s *dayState) bool { return true }},
}

// Evaluator derives work-time facts for one attendance record.
type Evaluator struct {
	days        DayMatcher
	policies    []policy
	statusRules []statusRule
}

func NewEvaluator(days DayMatcher) *Evaluator {
	return &Evaluator{
		days:        days,
		policies:    defaultPolicies,
		statusRules: defaultStatusRules,
	}
}

// Evaluate runs the policy list over a day that has already ended. shift may
// be nil. The record is not modified.
func (e *Evaluator) Evaluate(record *attendance.Record, shift *schedule.ShiftAssignment, rules rule.Set) (attendance.Facts, error) {
	return e.EvaluateAt(record, shift, rules, time.Time{})
}

// EvaluateAt evaluates record as seen at asOf. Before the day closes,
// exceptions that a later punch could still cure are not raised, though the
// measurements are reported. A zero asOf treats the day as closed.
func (e *Evaluator) EvaluateAt(record *attendance.Record, shift *schedule.ShiftAssignment, rules rule.Set, asOf time.Time) (attendance.Facts, error) {
	s := &dayState{
		record: record,
		rules:  rules,
		facts:  attendance.Facts{DayKind: attendance.DayWorking},
	}
	if shift != nil {
		start, end, err := shift.Window(record.Date)
		if err != nil {
			return attendance.Facts{}, err
		}
		s.hasShift, s.shiftStart, s.shiftEnd = true, start, end
	}
	s.open = !asOf.IsZero() && asOf.Before(s.closesAt())

	for _, p := range e.policies {
		if err := p.apply(e, s); err != nil {
			return attendance.Facts{}, err
		}
	}

	for _, r := range e.statusRules {
		if r.when(s) {
			s.facts.Status = r.status
			break
		}
	}
	return s.facts, nil
}

// pairPunches turns the sorted punches into In/Out intervals.
func pairPunches(_ *Evaluator, s *dayState) error {
	punches := s.record.SortedPunches()
	s.punchCount = len(punches)

	for i, p := range punches {
		switch p.Kind {
		case attendance.PunchIn:
			if s.openIn != nil {
				if !s.record.Corrected {
					return sequenceError(s.record, i, p)
				}
				// Corrected: keep the earliest In.
				continue
			}
			t := p.Time
			s.openIn = &t
			if s.firstIn == nil {
				s.firstIn = &t
			}
		case attendance.PunchOut:
			if s.openIn == nil {
				if !s.record.Corrected {
					return sequenceError(s.record, i, p)
				}
				// Corrected: a repeated Out extends the last interval, a leading Out is dropped.
				if n := len(s.intervals); n > 0 {
					s.intervals[n-1].out = p.Time
					t := p.Time
					s.lastOut = &t
				}
				continue
			}
			s.intervals = append(s.intervals, interval{in: *s.openIn, out: p.Time})
			t := p.Time
			s.lastOut = &t
			s.openIn = nil
		default:
			return attendance.ErrInvalidPunchSequence.
				WithEntity("attendance_record", s.record.ID).
				WithField("punch_kind", string(p.Kind))
		}
	}

	var worked time.Duration
	for _, iv := range s.intervals {
		worked += iv.out.Sub(iv.in)
	}
	s.facts.WorkedMinutes = floorMinutes(worked)
	s.facts.FinalCalculatedHours = decimal.NewFromInt(int64(s.facts.WorkedMinutes)).
		Div(decimal.NewFromInt(60)).
		Round(2)
	return nil
}

func sequenceError(r *attendance.Record, index int, p attendance.Punch) error {
	return attendance.ErrInvalidPunchSequence.
		WithEntity("attendance_record", r.ID).
		WithStates(string(opposite(p.Kind)), string(p.Kind)).
		WithField("punch_index", fmt.Sprint(index)).
		WithField("punch_time", p.Time.Format(time.RFC3339))
}

func opposite(k attendance.PunchKind) attendance.PunchKind {
	if k == attendance.PunchIn {
		return attendance.PunchOut
	}
	return attendance.PunchIn
}

// classifyDay marks holidays and rest days. Holiday rules are checked first.
func classifyDay(e *Evaluator, s *dayState) error {
	dc := ruleexpr.DayContext{Date: s.record.Date, Scope: s.rules.Scope, EmployeeID: s.record.EmployeeID}
	for _, cfg := range s.rules.DayRules() {
		matched, err := e.dayMatches(cfg, dc)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		if cfg.IsHoliday {
			s.facts.DayKind = attendance.DayHoliday
		} else if cfg.IsRestDay {
			s.facts.DayKind = attendance.DayRestDay
		}
		return nil
	}
	return nil
}

func (e *Evaluator) dayMatches(cfg *rule.Config, dc ruleexpr.DayContext) (bool, error) {
	if cfg.HasDate(dc.Date) {
		return true, nil
	}
	if cfg.Condition == "" || e.days == nil {
		return false, nil
	}
	ok, err := e.days.Eval(cfg.Condition, dc)
	if err != nil {
		return false, rule.ErrInvalidCondition.WithEntity("rule_config", cfg.ID).WithField("cause", err.Error())
	}
	return ok, nil
}

func measureLateness(_ *Evaluator, s *dayState) error {
	if !s.hasShift || s.firstIn == nil {
		return nil
	}
	grace, method := graceOf(s.rules.Lateness)
	s.facts.LatenessMinutes = intPtr(beyondGrace(s.shiftStart, *s.firstIn, grace, method))
	return nil
}

func measureEarlyLeave(_ *Evaluator, s *dayState) error {
	if !s.hasShift || !s.complete() {
		return nil
	}
	grace, method := graceOf(s.rules.ShortTime)
	s.facts.EarlyLeaveMinutes = intPtr(beyondGrace(*s.lastOut, s.shiftEnd, grace, method))
	return nil
}

func measureShortTime(_ *Evaluator, s *dayState) error {
	if !s.hasShift || !s.complete() {
		return nil
	}
	grace, method := graceOf(s.rules.ShortTime)
	expected := floorMinutes(s.shiftEnd.Sub(s.shiftStart))
	shortfall := expected - s.facts.WorkedMinutes
	minutes := 0
	if shortfall > grace {
		minutes = shortfall
		if method == rule.CalculateFromGraceEnd {
			minutes -= grace
		}
	}
	s.facts.ShortTimeMinutes = intPtr(minutes)
	return nil
}

func measureOvertime(_ *Evaluator, s *dayState) error {
	if !s.hasShift || !s.complete() {
		return nil
	}
	excess := 0
	if s.lastOut.After(s.shiftEnd) {
		excess = floorMinutes(s.lastOut.Sub(s.shiftEnd))
	}
	minMinutes, needsApproval := 0, false
	if cfg := s.rules.Overtime; cfg != nil {
		minMinutes, needsApproval = cfg.MinMinutes, cfg.RequiresApproval
	}
	if excess < minMinutes {
		excess = 0
	}
	s.facts.OvertimeMinutes = intPtr(excess)
	s.facts.OvertimeNeedsApproval = needsApproval && excess > 0
	return nil
}

// applyDaySuppression zeroes the measurements a matching day rule suppresses.
func applyDaySuppression(_ *Evaluator, s *dayState) error {
	var cfg *rule.Config
	switch s.facts.DayKind {
	case attendance.DayHoliday:
		cfg = s.rules.Holiday
	case attendance.DayRestDay:
		cfg = s.rules.RestDay
	default:
		return nil
	}
	if cfg == nil {
		return nil
	}
	if cfg.SuppressLateness && s.facts.LatenessMinutes != nil {
		s.facts.LatenessMinutes = intPtr(0)
	}
	if cfg.SuppressEarlyLeave && s.facts.EarlyLeaveMinutes != nil {
		s.facts.EarlyLeaveMinutes = intPtr(0)
	}
	if cfg.SuppressPenalties && s.facts.ShortTimeMinutes != nil {
		s.facts.ShortTimeMinutes = intPtr(0)
	}
	return nil
}

// detectExceptions lists the anomalies for the ledger. The ledger never
// withdraws an exception, so anything a later punch could still cure waits
// until the day has closed.
func detectExceptions(_ *Evaluator, s *dayState) error {
	var out []attendance.ExceptionType
	if s.openIn != nil && !s.open {
		out = append(out, attendance.ExceptionMissedPunch)
	}
	if positive(s.facts.LatenessMinutes) {
		out = append(out, attendance.ExceptionLate)
	}
	if positive(s.facts.EarlyLeaveMinutes) && !s.open {
		out = append(out, attendance.ExceptionEarlyLeave)
	}
	if positive(s.facts.ShortTimeMinutes) && !s.open {
		out = append(out, attendance.ExceptionShortTime)
	}
	if s.facts.OvertimeNeedsApproval {
		out = append(out, attendance.ExceptionOvertime)
	}
	s.facts.Exceptions = out
	return nil
}

func graceOf(cfg *rule.Config) (int, rule.CalculationMethod) {
	if cfg == nil {
		return 0, rule.CalculateFromGraceEnd
	}
	method := cfg.CalculationMethod
	if method == "" {
		method = rule.CalculateFromGraceEnd
	}
	return cfg.GracePeriodMinutes, method
}

// beyondGrace counts whole minutes actual is past expected. Landing exactly on
// the grace boundary is within grace.
func beyondGrace(expected, actual time.Time, grace int, method rule.CalculationMethod) int {
	limit := expected.Add(time.Duration(grace) * time.Minute)
	if !actual.After(limit) {
		return 0
	}
	if method == rule.CalculateFromShiftStart {
		return floorMinutes(actual.Sub(expected))
	}
	return floorMinutes(actual.Sub(limit))
}

func floorMinutes(d time.Duration) int {
	return int(math.Floor(d.Minutes()))
}

func positive(v *int) bool {
	return v != nil && *v > 0
}

func intPtr(v int) *int {
	return &v
}
