package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShiftAssignment_Window(t *testing.T) {
	date := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	day := ShiftAssignment{ClockInTime: "09:00", ClockOutTime: "17:00"}
	start, end, err := day.Window(date)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC), end)

	night := ShiftAssignment{ClockInTime: "22:00", ClockOutTime: "06:00"}
	start, end, err = night.Window(date)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 22, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 20, 6, 0, 0, 0, time.UTC), end)

	bad := ShiftAssignment{ClockInTime: "9am", ClockOutTime: "17:00"}
	_, _, err = bad.Window(date)
	assert.ErrorIs(t, err, ErrInvalidShiftTime)
}

func TestShiftAssignment_CoversDate(t *testing.T) {
	end := time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC)
	s := ShiftAssignment{
		StartDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   &end,
	}

	assert.False(t, s.CoversDate(time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC)))
	assert.True(t, s.CoversDate(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, s.CoversDate(time.Date(2026, 10, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, s.CoversDate(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)))
}
