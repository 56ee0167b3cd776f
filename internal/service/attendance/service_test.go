package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/apperror"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type attendanceFixture struct {
	svc        *AttendanceServiceImpl
	ledger     *LedgerImpl
	records    *fakeRecords
	exceptions *fakeExceptions
	notifier   *fakeNotifier
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	manager := "mgr-1"
	dir := fakeDirectory{employees: map[string]*employee.Employee{
		"emp-1": {ID: "emp-1", FullName: "Ana", ManagerID: &manager, EmploymentStatus: employee.StatusActive, Scope: "global"},
		"emp-2": {ID: "emp-2", FullName: "Budi", EmploymentStatus: employee.StatusActive, Scope: "global"},
		"emp-9": {ID: "emp-9", FullName: "Gone", EmploymentStatus: employee.StatusResigned, Scope: "global"},
	}}
	records := newFakeRecords()
	exceptions := &fakeExceptions{}
	ledger := NewLedger(records, exceptions)
	notifier := &fakeNotifier{}
	shift := nineToFive()
	shift.StartDate = workDay.AddDate(0, -1, 0)

	svc := NewAttendanceService(
		fakeTx{},
		records,
		exceptions,
		ledger,
		fakeShifts{shift: shift},
		fakeRuleStore{set: baseRules()},
		dir,
		newTestEvaluator(t),
		lock.NewKeyedMutex(),
		notifier,
		metrics.New(prometheus.NewRegistry()),
		nil,
	).(*AttendanceServiceImpl)
	svc.now = func() time.Time { return workDay.AddDate(0, 0, 3).Add(12 * time.Hour) }

	return &attendanceFixture{svc: svc, ledger: ledger, records: records, exceptions: exceptions, notifier: notifier}
}

func actorAs(role user.Role, employeeID string) user.Actor {
	return user.Actor{
		UserID:       "user-" + employeeID,
		EmployeeID:   employeeID,
		Role:         role,
		Capabilities: user.NewCapabilitySet(user.RolePermissions[role]...),
	}
}

func punchReq(employeeID, kind string, t time.Time) attendance.RecordPunchRequest {
	return attendance.RecordPunchRequest{EmployeeID: employeeID, Kind: kind, Time: t.Format(time.RFC3339)}
}

// clockAt makes the service see t as the current time, like a live punch clock.
func (f *attendanceFixture) clockAt(t time.Time) {
	f.svc.now = func() time.Time { return t }
}

func exceptionTypes(exs []attendance.Exception) map[attendance.ExceptionType]bool {
	types := map[attendance.ExceptionType]bool{}
	for _, ex := range exs {
		types[ex.Type] = true
	}
	return types
}

func TestRecordPunch_CreatesAndEvaluatesRecord(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	emp := actorAs(user.RoleEmployee, "emp-1")

	f.clockAt(at("09:30"))
	rec, err := f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "in", at("09:30")))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusMissingPunch, rec.Status)
	assert.Equal(t, workDay, rec.Date)
	assert.Equal(t, map[attendance.ExceptionType]bool{attendance.ExceptionLate: true}, exceptionTypes(rec.Exceptions),
		"lateness is final at clock-in, the open In is not a missed punch yet")

	f.clockAt(at("17:00"))
	rec, err = f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "OUT", at("17:00")))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusLate, rec.Status)
	assert.Equal(t, 20, *rec.LatenessMinutes)
	assert.Equal(t, 450, rec.WorkedMinutes)
	require.NotNil(t, rec.ShiftID)
	assert.Equal(t, "shift-1", *rec.ShiftID)
	assert.Equal(t, 1, f.records.count())
	assert.Equal(t, map[attendance.ExceptionType]bool{attendance.ExceptionLate: true}, exceptionTypes(rec.Exceptions))
}

func TestRecordPunch_FullDayLeavesNothingUnresolved(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	emp := actorAs(user.RoleEmployee, "emp-1")
	day := attendance.Period{Start: workDay, End: workDay}

	f.clockAt(at("09:00"))
	_, err := f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "IN", at("09:00")))
	require.NoError(t, err)

	f.clockAt(at("17:00"))
	rec, err := f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "OUT", at("17:00")))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	assert.Equal(t, 480, rec.WorkedMinutes)

	unresolved, err := f.ledger.HasUnresolved(ctx, "emp-1", day)
	require.NoError(t, err)
	assert.False(t, unresolved)
	assert.Empty(t, f.notifier.requests())

	// The nightly recompute sees the same closed day and still finds nothing.
	f.clockAt(workDay.AddDate(0, 0, 1).Add(time.Hour))
	_, err = f.svc.EvaluateDay(ctx, actorAs(user.RoleHRAdmin, "hr-1"), "emp-1", workDay)
	require.NoError(t, err)
	unresolved, err = f.ledger.HasUnresolved(ctx, "emp-1", day)
	require.NoError(t, err)
	assert.False(t, unresolved)
}

func TestRecordPunch_LunchBreakIsJudgedWhenTheDayCloses(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	emp := actorAs(user.RoleEmployee, "emp-1")
	day := attendance.Period{Start: workDay, End: workDay}

	for _, p := range []struct{ kind, clock string }{
		{"IN", "09:00"}, {"OUT", "12:00"}, {"IN", "13:00"}, {"OUT", "17:00"},
	} {
		f.clockAt(at(p.clock))
		_, err := f.svc.RecordPunch(ctx, emp, punchReq("emp-1", p.kind, at(p.clock)))
		require.NoError(t, err)

		unresolved, err := f.ledger.HasUnresolved(ctx, "emp-1", day)
		require.NoError(t, err)
		assert.False(t, unresolved, "after %s %s", p.kind, p.clock)
	}

	// 420 of 480 minutes worked: short by 60, 45 past the grace period.
	f.clockAt(workDay.AddDate(0, 0, 1).Add(time.Hour))
	rec, err := f.svc.EvaluateDay(ctx, actorAs(user.RoleHRAdmin, "hr-1"), "emp-1", workDay)
	require.NoError(t, err)
	assert.Equal(t, 45, *rec.ShortTimeMinutes)
	assert.Equal(t, map[attendance.ExceptionType]bool{attendance.ExceptionShortTime: true}, exceptionTypes(rec.Exceptions))
}

func TestEvaluateDay_MissedPunchRaisedAfterDayCloses(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	hr := actorAs(user.RoleHRAdmin, "hr-1")

	f.clockAt(at("09:00"))
	rec, err := f.svc.RecordPunch(ctx, actorAs(user.RoleEmployee, "emp-1"), punchReq("emp-1", "IN", at("09:00")))
	require.NoError(t, err)
	assert.Empty(t, rec.Exceptions)

	f.clockAt(at("23:59"))
	rec, err = f.svc.EvaluateDay(ctx, hr, "emp-1", workDay)
	require.NoError(t, err)
	assert.Empty(t, rec.Exceptions)

	f.clockAt(workDay.AddDate(0, 0, 1))
	rec, err = f.svc.EvaluateDay(ctx, hr, "emp-1", workDay)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusMissingPunch, rec.Status)
	assert.Equal(t, map[attendance.ExceptionType]bool{attendance.ExceptionMissedPunch: true}, exceptionTypes(rec.Exceptions))
	assert.Len(t, f.notifier.requests(), 2)
}

func TestRecordPunch_NotifiesEmployeeAndManagerOncePerException(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	emp := actorAs(user.RoleEmployee, "emp-1")
	hr := actorAs(user.RoleHRAdmin, "hr-1")

	_, err := f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "IN", at("09:00")))
	require.NoError(t, err)
	require.Len(t, f.notifier.requests(), 2)

	// Re-evaluating detects the same MissedPunch again; nothing new to announce.
	_, err = f.svc.EvaluateDay(ctx, hr, "emp-1", workDay)
	require.NoError(t, err)
	assert.Len(t, f.notifier.requests(), 2)

	recipients := []string{f.notifier.requests()[0].RecipientID, f.notifier.requests()[1].RecipientID}
	assert.ElementsMatch(t, []string{"emp-1", "mgr-1"}, recipients)
}

func TestRecordPunch_ForOtherEmployeeIsForbidden(t *testing.T) {
	f := newAttendanceFixture(t)

	_, err := f.svc.RecordPunch(context.Background(), actorAs(user.RoleEmployee, "emp-1"), punchReq("emp-2", "IN", at("09:00")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, attendance.ErrPunchForOtherEmployee))
	assert.Equal(t, apperror.CodeForbidden, apperror.CodeOf(err))
}

func TestRecordPunch_InactiveEmployee(t *testing.T) {
	f := newAttendanceFixture(t)

	_, err := f.svc.RecordPunch(context.Background(), actorAs(user.RoleHRAdmin, "hr-1"), punchReq("emp-9", "IN", at("09:00")))
	assert.True(t, errors.Is(err, employee.ErrEmployeeInactive))
}

func TestRecordPunch_InvalidSequenceIsNotStored(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	emp := actorAs(user.RoleEmployee, "emp-1")

	_, err := f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "IN", at("09:00")))
	require.NoError(t, err)

	_, err = f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "IN", at("09:01")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, attendance.ErrInvalidPunchSequence))

	stored, err := f.records.GetByEmployeeAndDate(ctx, "emp-1", workDay)
	require.NoError(t, err)
	assert.Len(t, stored.Punches, 1)
}

func TestRecordPunch_OvernightOutJoinsPreviousDay(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	emp := actorAs(user.RoleEmployee, "emp-1")

	_, err := f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "IN", at("21:00")))
	require.NoError(t, err)

	rec, err := f.svc.RecordPunch(ctx, emp, punchReq("emp-1", "OUT", workDay.Add(26*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, workDay, rec.Date)
	assert.Equal(t, 300, rec.WorkedMinutes)
	assert.Equal(t, 1, f.records.count())
}

func TestEvaluateDay_NoPunchesIsAbsent(t *testing.T) {
	f := newAttendanceFixture(t)

	rec, err := f.svc.EvaluateDay(context.Background(), actorAs(user.RoleHRAdmin, "hr-1"), "emp-2", workDay)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
	assert.Nil(t, rec.LatenessMinutes)
	assert.Nil(t, rec.OvertimeMinutes)
	assert.Empty(t, rec.Exceptions)
}

func TestEvaluateDay_RequiresCapability(t *testing.T) {
	f := newAttendanceFixture(t)

	_, err := f.svc.EvaluateDay(context.Background(), actorAs(user.RoleEmployee, "emp-1"), "emp-1", workDay)
	assert.True(t, errors.Is(err, user.ErrInsufficientPermissions))
}

func TestResolveException_FlipsOnlyTheNamedType(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	rec, err := f.svc.RecordPunch(ctx, actorAs(user.RoleEmployee, "emp-1"), punchReq("emp-1", "IN", at("09:45")))
	require.NoError(t, err)
	require.Len(t, rec.Exceptions, 2)

	_, err = f.ledger.ResolveException(ctx, actorAs(user.RoleEmployee, "emp-1"), rec.ID, attendance.ExceptionLate)
	assert.True(t, errors.Is(err, user.ErrInsufficientPermissions))

	resolved, err := f.ledger.ResolveException(ctx, actorAs(user.RoleHRAdmin, "hr-1"), rec.ID, attendance.ExceptionLate)
	require.NoError(t, err)
	for _, ex := range resolved.Exceptions {
		assert.Equal(t, ex.Type == attendance.ExceptionLate, ex.Resolved, string(ex.Type))
	}

	_, err = f.ledger.ResolveException(ctx, actorAs(user.RoleHRAdmin, "hr-1"), rec.ID, attendance.ExceptionLate)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	period := attendance.Period{Start: workDay, End: workDay}
	open, err := f.ledger.HasUnresolved(ctx, "emp-1", period)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestLedgerSync_IsIdempotent(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	rec, err := f.records.GetOrCreate(ctx, "emp-1", workDay)
	require.NoError(t, err)

	detected := []attendance.ExceptionType{attendance.ExceptionLate, attendance.ExceptionShortTime}
	first, err := f.ledger.Sync(ctx, rec, detected)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := f.ledger.Sync(ctx, rec, detected)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, f.exceptions.all(), 2)
}

func TestRecompute_ConcurrentRunsDoNotDuplicateExceptions(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	_, err := f.svc.RecordPunch(ctx, actorAs(user.RoleEmployee, "emp-1"), punchReq("emp-1", "IN", at("10:00")))
	require.NoError(t, err)

	period := attendance.Period{Start: workDay, End: workDay.AddDate(0, 0, 6)}
	var wg sync.WaitGroup
	counts := make([]int, 3)
	for i := range counts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.svc.Recompute(ctx, period)
			assert.NoError(t, err)
			counts[i] = n
		}()
	}
	wg.Wait()

	// now is workDay+3, so 4 elapsed days for each of the 2 active employees.
	for _, n := range counts {
		assert.Equal(t, 8, n)
	}
	assert.Equal(t, 8, f.records.count())

	seen := map[string]int{}
	for _, ex := range f.exceptions.all() {
		seen[ex.RecordID+"/"+string(ex.Type)]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, key)
	}
}

func TestList_OtherEmployeeNeedsViewAll(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	req := attendance.ListRecordsRequest{EmployeeID: "emp-2", From: "2024-03-01", To: "2024-03-31"}

	_, err := f.svc.List(ctx, actorAs(user.RoleEmployee, "emp-1"), req)
	assert.True(t, errors.Is(err, user.ErrInsufficientPermissions))

	_, err = f.svc.EvaluateDay(ctx, actorAs(user.RoleHRAdmin, "hr-1"), "emp-2", workDay)
	require.NoError(t, err)

	records, err := f.svc.List(ctx, actorAs(user.RoleHRAdmin, "hr-1"), req)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	exs, err := f.svc.ListExceptions(ctx, actorAs(user.RoleEmployee, "emp-2"), attendance.ListRecordsRequest{From: "2024-03-01", To: "2024-03-31"})
	require.NoError(t, err)
	assert.Empty(t, exs)
}
