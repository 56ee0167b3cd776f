package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/ruleexpr"
)

// Monday.
var workDay = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func at(clock string) time.Time {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		panic(err)
	}
	return workDay.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

func in(clock string) attendance.Punch  { return attendance.Punch{Kind: attendance.PunchIn, Time: at(clock)} }
func out(clock string) attendance.Punch { return attendance.Punch{Kind: attendance.PunchOut, Time: at(clock)} }

func record(punches ...attendance.Punch) *attendance.Record {
	return &attendance.Record{ID: "rec-1", EmployeeID: "emp-1", Date: workDay, Punches: punches}
}

func nineToFive() *schedule.ShiftAssignment {
	return &schedule.ShiftAssignment{
		ID:           "shift-1",
		EmployeeID:   "emp-1",
		StartDate:    workDay.AddDate(0, -1, 0),
		Status:       schedule.AssignmentApproved,
		ClockInTime:  "09:00",
		ClockOutTime: "17:00",
	}
}

func baseRules() rule.Set {
	return rule.Set{
		Scope:     rule.ScopeGlobal,
		Lateness:  &rule.Config{RuleType: rule.TypeLateness, GracePeriodMinutes: 10, CalculationMethod: rule.CalculateFromGraceEnd, Active: true},
		ShortTime: &rule.Config{RuleType: rule.TypeShortTime, GracePeriodMinutes: 15, CalculationMethod: rule.CalculateFromGraceEnd, Active: true},
		Overtime:  &rule.Config{RuleType: rule.TypeOvertime, MinMinutes: 30, RequiresApproval: true, Active: true},
	}
}

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	engine, err := ruleexpr.NewEngine()
	require.NoError(t, err)
	return NewEvaluator(engine)
}

func TestEvaluate_WorkedMinutesIsSumOfPairs(t *testing.T) {
	tests := []struct {
		name    string
		punches []attendance.Punch
		want    int
	}{
		{"single pair", []attendance.Punch{in("09:00"), out("17:00")}, 480},
		{"lunch break", []attendance.Punch{in("09:00"), out("12:00"), in("13:00"), out("17:00")}, 420},
		{"unsorted input", []attendance.Punch{out("12:30"), in("08:15"), out("17:05"), in("13:00")}, 255 + 245},
		{"three pairs", []attendance.Punch{in("08:00"), out("09:00"), in("10:00"), out("10:30"), in("11:00"), out("11:01")}, 91},
	}
	ev := newTestEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := ev.Evaluate(record(tt.punches...), nil, rule.Set{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, facts.WorkedMinutes)
			assert.True(t, decimal.NewFromInt(int64(tt.want)).Div(decimal.NewFromInt(60)).Round(2).Equal(facts.FinalCalculatedHours))
		})
	}
}

func TestEvaluate_NoPunchesOnWorkingDayIsAbsent(t *testing.T) {
	facts, err := newTestEvaluator(t).Evaluate(record(), nineToFive(), baseRules())
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusAbsent, facts.Status)
	assert.Nil(t, facts.LatenessMinutes)
	assert.Nil(t, facts.OvertimeMinutes)
	assert.Nil(t, facts.ShortTimeMinutes)
	assert.Nil(t, facts.EarlyLeaveMinutes)
	assert.Empty(t, facts.Exceptions)
	assert.Zero(t, facts.WorkedMinutes)
}

func TestEvaluate_Lateness(t *testing.T) {
	tests := []struct {
		name       string
		firstIn    string
		method     rule.CalculationMethod
		wantLate   int
		wantStatus attendance.Status
	}{
		{"on time", "08:55", rule.CalculateFromGraceEnd, 0, attendance.StatusPresent},
		{"boundary equal is within grace", "09:10", rule.CalculateFromGraceEnd, 0, attendance.StatusPresent},
		{"past grace counts from grace end", "09:25", rule.CalculateFromGraceEnd, 15, attendance.StatusLate},
		{"past grace counts from shift start", "09:25", rule.CalculateFromShiftStart, 25, attendance.StatusLate},
		{"within grace from shift start", "09:05", rule.CalculateFromShiftStart, 0, attendance.StatusPresent},
	}
	ev := newTestEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := baseRules()
			rules.Lateness.CalculationMethod = tt.method

			facts, err := ev.Evaluate(record(in(tt.firstIn), out("17:20")), nineToFive(), rules)
			require.NoError(t, err)
			require.NotNil(t, facts.LatenessMinutes)
			assert.Equal(t, tt.wantLate, *facts.LatenessMinutes)
			assert.Equal(t, tt.wantStatus, facts.Status)
			if tt.wantLate > 0 {
				assert.Contains(t, facts.Exceptions, attendance.ExceptionLate)
			} else {
				assert.NotContains(t, facts.Exceptions, attendance.ExceptionLate)
			}
		})
	}
}

func TestEvaluate_LatenessFloorsPartialMinutes(t *testing.T) {
	r := record(attendance.Punch{Kind: attendance.PunchIn, Time: at("09:12").Add(59 * time.Second)}, out("17:00"))

	facts, err := newTestEvaluator(t).Evaluate(r, nineToFive(), baseRules())
	require.NoError(t, err)
	assert.Equal(t, 2, *facts.LatenessMinutes)
}

func TestEvaluate_EarlyLeaveAndShortTime(t *testing.T) {
	facts, err := newTestEvaluator(t).Evaluate(record(in("09:00"), out("16:00")), nineToFive(), baseRules())
	require.NoError(t, err)

	// 60 minutes short, 15 minutes grace, measured from grace end.
	assert.Equal(t, 45, *facts.EarlyLeaveMinutes)
	assert.Equal(t, 45, *facts.ShortTimeMinutes)
	assert.Equal(t, attendance.StatusEarlyLeave, facts.Status)
	assert.ElementsMatch(t, []attendance.ExceptionType{attendance.ExceptionEarlyLeave, attendance.ExceptionShortTime}, facts.Exceptions)
}

func TestEvaluate_ShortTimeWithoutEarlyLeave(t *testing.T) {
	// Left on time but took a long break.
	r := record(in("09:00"), out("11:00"), in("13:00"), out("17:00"))

	facts, err := newTestEvaluator(t).Evaluate(r, nineToFive(), baseRules())
	require.NoError(t, err)

	assert.Equal(t, 0, *facts.EarlyLeaveMinutes)
	assert.Equal(t, 105, *facts.ShortTimeMinutes)
	assert.Equal(t, attendance.StatusShortTime, facts.Status)
}

func TestEvaluate_Overtime(t *testing.T) {
	tests := []struct {
		name          string
		lastOut       string
		minMinutes    int
		requires      bool
		wantOvertime  int
		wantStatus    attendance.Status
		wantException bool
	}{
		{"below threshold", "17:20", 30, true, 0, attendance.StatusPresent, false},
		{"at threshold", "17:30", 30, true, 30, attendance.StatusOvertime, true},
		{"no threshold any excess", "17:01", 0, false, 1, attendance.StatusOvertime, false},
		{"approval not required", "18:00", 30, false, 60, attendance.StatusOvertime, false},
	}
	ev := newTestEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := baseRules()
			rules.Overtime.MinMinutes = tt.minMinutes
			rules.Overtime.RequiresApproval = tt.requires

			facts, err := ev.Evaluate(record(in("09:00"), out(tt.lastOut)), nineToFive(), rules)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOvertime, *facts.OvertimeMinutes)
			assert.Equal(t, tt.wantStatus, facts.Status)
			assert.Equal(t, tt.wantException, facts.OvertimeNeedsApproval)
			if tt.wantException {
				assert.Contains(t, facts.Exceptions, attendance.ExceptionOvertime)
			} else {
				assert.NotContains(t, facts.Exceptions, attendance.ExceptionOvertime)
			}
		})
	}
}

func TestEvaluate_OddPunchCountIsMissingPunch(t *testing.T) {
	facts, err := newTestEvaluator(t).Evaluate(record(in("09:30"), out("12:00"), in("13:00")), nineToFive(), baseRules())
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusMissingPunch, facts.Status)
	assert.Contains(t, facts.Exceptions, attendance.ExceptionMissedPunch)
	// Lateness is still known from the first In, end-of-day measures are not.
	assert.Equal(t, 20, *facts.LatenessMinutes)
	assert.Nil(t, facts.OvertimeMinutes)
	assert.Nil(t, facts.ShortTimeMinutes)
	assert.Equal(t, 150, facts.WorkedMinutes)
}

func TestEvaluate_InvalidPunchSequence(t *testing.T) {
	tests := []struct {
		name    string
		punches []attendance.Punch
	}{
		{"double in", []attendance.Punch{in("09:00"), in("09:05"), out("17:00")}},
		{"double out", []attendance.Punch{in("09:00"), out("12:00"), out("17:00")}},
		{"leading out", []attendance.Punch{out("08:00"), in("09:00"), out("17:00")}},
	}
	ev := newTestEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ev.Evaluate(record(tt.punches...), nineToFive(), baseRules())
			require.Error(t, err)
			assert.True(t, errors.Is(err, attendance.ErrInvalidPunchSequence))
			assert.True(t, errors.Is(err, apperror.ErrValidation))
		})
	}
}

func TestEvaluate_CorrectedRecordCollapsesDuplicates(t *testing.T) {
	r := record(in("09:00"), in("09:05"), out("16:30"), out("17:00"))
	r.Corrected = true

	facts, err := newTestEvaluator(t).Evaluate(r, nineToFive(), baseRules())
	require.NoError(t, err)

	assert.Equal(t, 480, facts.WorkedMinutes)
	assert.Equal(t, attendance.StatusPresent, facts.Status)
	assert.Equal(t, 0, *facts.EarlyLeaveMinutes)
}

func TestEvaluate_HolidayTakesPrecedenceAndSuppresses(t *testing.T) {
	rules := baseRules()
	rules.Holiday = &rule.Config{
		RuleType:           rule.TypeHoliday,
		IsHoliday:          true,
		SuppressLateness:   true,
		SuppressEarlyLeave: true,
		SuppressPenalties:  true,
		Dates:              []string{"2024-03-04"},
		Active:             true,
	}

	facts, err := newTestEvaluator(t).Evaluate(record(in("10:00"), out("15:00")), nineToFive(), rules)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusHoliday, facts.Status)
	assert.Equal(t, attendance.DayHoliday, facts.DayKind)
	assert.Equal(t, 0, *facts.LatenessMinutes)
	assert.Equal(t, 0, *facts.EarlyLeaveMinutes)
	assert.Equal(t, 0, *facts.ShortTimeMinutes)
	assert.Empty(t, facts.Exceptions)
	assert.Equal(t, 300, facts.WorkedMinutes)
}

func TestEvaluate_HolidayWithoutSuppressionKeepsMinutes(t *testing.T) {
	rules := baseRules()
	rules.Holiday = &rule.Config{RuleType: rule.TypeHoliday, IsHoliday: true, Dates: []string{"2024-03-04"}, Active: true}

	facts, err := newTestEvaluator(t).Evaluate(record(in("10:00"), out("17:00")), nineToFive(), rules)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusHoliday, facts.Status)
	assert.Equal(t, 50, *facts.LatenessMinutes)
	assert.Contains(t, facts.Exceptions, attendance.ExceptionLate)
}

func TestEvaluate_MissingPunchOutranksHoliday(t *testing.T) {
	rules := baseRules()
	rules.Holiday = &rule.Config{RuleType: rule.TypeHoliday, IsHoliday: true, Dates: []string{"2024-03-04"}, Active: true}

	facts, err := newTestEvaluator(t).Evaluate(record(in("09:00")), nineToFive(), rules)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusMissingPunch, facts.Status)
}

func TestEvaluate_RestDayByCondition(t *testing.T) {
	rules := baseRules()
	rules.RestDay = &rule.Config{
		ID:               "rest-weekend",
		RuleType:         rule.TypeRestDay,
		IsRestDay:        true,
		SuppressLateness: true,
		Condition:        "weekday == 0 || weekday == 6",
		Active:           true,
	}
	ev := newTestEvaluator(t)

	saturday := &attendance.Record{ID: "rec-sat", EmployeeID: "emp-1", Date: workDay.AddDate(0, 0, 5)}
	facts, err := ev.Evaluate(saturday, nil, rules)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusRestDay, facts.Status)

	facts, err = ev.Evaluate(record(), nineToFive(), rules)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, facts.Status)
}

func TestEvaluate_BadConditionIsReported(t *testing.T) {
	rules := rule.Set{RestDay: &rule.Config{ID: "bad", RuleType: rule.TypeRestDay, IsRestDay: true, Condition: "weekday +", Active: true}}

	_, err := newTestEvaluator(t).Evaluate(record(), nil, rules)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rule.ErrInvalidCondition))
}

func TestEvaluate_NoShiftMeansNoMeasurements(t *testing.T) {
	facts, err := newTestEvaluator(t).Evaluate(record(in("11:00"), out("12:00")), nil, baseRules())
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusPresent, facts.Status)
	assert.Nil(t, facts.LatenessMinutes)
	assert.Equal(t, 60, facts.WorkedMinutes)
}

func TestEvaluateAt_OpenDayDefersCurableExceptions(t *testing.T) {
	tests := []struct {
		name    string
		punches []attendance.Punch
		asOf    time.Time
		want    []attendance.ExceptionType
	}{
		{
			name:    "clocked in on time",
			punches: []attendance.Punch{in("09:00")},
			asOf:    at("09:00"),
			want:    nil,
		},
		{
			name:    "clocked in late",
			punches: []attendance.Punch{in("09:30")},
			asOf:    at("09:30"),
			want:    []attendance.ExceptionType{attendance.ExceptionLate},
		},
		{
			name:    "out for lunch",
			punches: []attendance.Punch{in("09:00"), out("12:00")},
			asOf:    at("12:00"),
			want:    nil,
		},
		{
			name:    "day over with open in",
			punches: []attendance.Punch{in("09:00")},
			asOf:    workDay.AddDate(0, 0, 1),
			want:    []attendance.ExceptionType{attendance.ExceptionMissedPunch},
		},
		{
			name:    "day over after leaving at noon",
			punches: []attendance.Punch{in("09:00"), out("12:00")},
			asOf:    workDay.AddDate(0, 0, 1),
			want:    []attendance.ExceptionType{attendance.ExceptionEarlyLeave, attendance.ExceptionShortTime},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := newTestEvaluator(t).EvaluateAt(record(tt.punches...), nineToFive(), baseRules(), tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, facts.Exceptions)
		})
	}
}

func TestEvaluateAt_OvernightShiftStaysOpenUntilShiftEnd(t *testing.T) {
	shift := nineToFive()
	shift.ClockInTime, shift.ClockOutTime = "22:00", "06:00"
	r := record(in("22:00"))

	facts, err := newTestEvaluator(t).EvaluateAt(r, shift, baseRules(), workDay.Add(26*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, facts.Exceptions)

	facts, err = newTestEvaluator(t).EvaluateAt(r, shift, baseRules(), workDay.Add(30*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []attendance.ExceptionType{attendance.ExceptionMissedPunch}, facts.Exceptions)
}

func TestEvaluate_OvernightShift(t *testing.T) {
	shift := nineToFive()
	shift.ClockInTime, shift.ClockOutTime = "22:00", "06:00"
	r := record(in("22:05"), attendance.Punch{Kind: attendance.PunchOut, Time: workDay.Add(30 * time.Hour)})

	facts, err := newTestEvaluator(t).Evaluate(r, shift, baseRules())
	require.NoError(t, err)

	assert.Equal(t, 475, facts.WorkedMinutes)
	assert.Equal(t, 0, *facts.LatenessMinutes)
	assert.Equal(t, attendance.StatusPresent, facts.Status)
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	ev := newTestEvaluator(t)
	r := record(in("09:40"), out("16:00"), in("16:10"))

	first, err := ev.Evaluate(r, nineToFive(), baseRules())
	require.NoError(t, err)
	second, err := ev.Evaluate(r, nineToFive(), baseRules())
	require.NoError(t, err)

	assert.Equal(t, first.Exceptions, second.Exceptions)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first, second)
}

func TestPolicy_MeasureLatenessInIsolation(t *testing.T) {
	first := at("09:31")
	s := &dayState{
		record:     record(),
		rules:      rule.Set{Lateness: &rule.Config{GracePeriodMinutes: 30}},
		hasShift:   true,
		shiftStart: at("09:00"),
		firstIn:    &first,
	}

	require.NoError(t, measureLateness(nil, s))
	assert.Equal(t, 1, *s.facts.LatenessMinutes)
}

func TestPolicy_SuppressionOnlyTouchesFlaggedFields(t *testing.T) {
	s := &dayState{
		rules: rule.Set{Holiday: &rule.Config{IsHoliday: true, SuppressLateness: true}},
		facts: attendance.Facts{
			DayKind:           attendance.DayHoliday,
			LatenessMinutes:   intPtr(20),
			EarlyLeaveMinutes: intPtr(5),
		},
	}

	require.NoError(t, applyDaySuppression(nil, s))
	assert.Equal(t, 0, *s.facts.LatenessMinutes)
	assert.Equal(t, 5, *s.facts.EarlyLeaveMinutes)
	assert.Nil(t, s.facts.ShortTimeMinutes)
}
