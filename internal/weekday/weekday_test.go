package weekday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Weekday
		ok   bool
	}{
		{in: "mon", want: Monday, ok: true},
		{in: " SAT ", want: Saturday, ok: true},
		{in: "Sunday", want: Sunday, ok: true},
		{in: "thursday", want: Thursday, ok: true},
		{in: "thurs", ok: false},
		{in: "su", ok: false},
		{in: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseWeekday(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Monday, Of(time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Sunday, Of(time.Date(2023, time.May, 7, 0, 0, 0, 0, time.UTC)))
}

func TestParseOrdinal(t *testing.T) {
	t.Parallel()
	for _, s := range OrdinalOptions {
		o, err := ParseOrdinal(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, o.String())
	}
	for _, s := range []string{"0", "6", "-6", "last", ""} {
		_, err := ParseOrdinal(s)
		assert.Error(t, err, s)
	}
}

func TestMonthCalendar(t *testing.T) {
	t.Parallel()
	cal := MonthCalendar(2023, time.May)
	require.Len(t, cal, 5)
	assert.Equal(t, Week{1, 2, 3, 4, 5, 6, 7}, cal[0])
	assert.Equal(t, Week{29, 30, 31, 0, 0, 0, 0}, cal[4])

	cal = MonthCalendar(2023, time.October)
	require.Len(t, cal, 6)
	assert.Equal(t, Week{0, 0, 0, 0, 0, 0, 1}, cal[0])
	assert.Equal(t, Week{30, 31, 0, 0, 0, 0, 0}, cal[5])

	cal = MonthCalendar(2021, time.February)
	require.Len(t, cal, 4)
	assert.Equal(t, Week{22, 23, 24, 25, 26, 27, 28}, cal[3])

	cal = MonthCalendar(2024, time.February)
	assert.Equal(t, 29, cal[len(cal)-1][Thursday])
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "last sat", Describe(-1, "sat"))
	assert.Equal(t, "2nd from last fri", Describe(-2, "fri"))
	assert.Equal(t, "1st mon", Describe(1, "mon"))
	assert.Equal(t, "3rd tue", Describe(3, "tue"))
	assert.Equal(t, "5th sun", Describe(5, "sun"))
}
