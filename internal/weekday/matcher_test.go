package weekday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

// matchingDays returns every day of the month for which Matches is true.
func matchingDays(t *testing.T, y int, m time.Month, weekdays []string, ordinals []Ordinal) []int {
	t.Helper()
	var out []int
	for d := 1; d <= daysIn(y, m); d++ {
		if Matches(weekdays, ordinals, date(y, m, d)) {
			out = append(out, d)
		}
	}
	return out
}

func TestMatchesExamples(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		year     int
		month    time.Month
		weekdays []string
		ordinals []Ordinal
		want     []int
	}{
		"last saturday may 2023": {
			year: 2023, month: time.May,
			weekdays: []string{"sat"}, ordinals: []Ordinal{-1},
			want: []int{27},
		},
		"last friday when trailing row has none": {
			// November 2023 ends on a Thursday.
			year: 2023, month: time.November,
			weekdays: []string{"fri"}, ordinals: []Ordinal{-1},
			want: []int{24},
		},
		"second from last friday uses its own row": {
			year: 2023, month: time.November,
			weekdays: []string{"fri"}, ordinals: []Ordinal{-2},
			want: []int{24},
		},
		"fifth monday of a four-row month": {
			year: 2021, month: time.February,
			weekdays: []string{"mon"}, ordinals: []Ordinal{5},
			want: nil,
		},
		"fifth monday is the fifth row": {
			// The first row has no Monday, the fifth row starts on the 27th.
			year: 2023, month: time.November,
			weekdays: []string{"mon"}, ordinals: []Ordinal{5},
			want: []int{27},
		},
		"fallback above the first row": {
			year: 2023, month: time.November,
			weekdays: []string{"mon"}, ordinals: []Ordinal{-5},
			want: nil,
		},
		"first row without a monday": {
			// October 2023 starts on a Sunday.
			year: 2023, month: time.October,
			weekdays: []string{"mon"}, ordinals: []Ordinal{1},
			want: nil,
		},
		"second row monday when month starts on sunday": {
			year: 2023, month: time.October,
			weekdays: []string{"mon"}, ordinals: []Ordinal{2},
			want: []int{2},
		},
		"six-row month from the bottom": {
			year: 2023, month: time.October,
			weekdays: []string{"mon", "sun"}, ordinals: []Ordinal{-1},
			want: []int{29, 30},
		},
		"fifth and fifth from last monday": {
			year: 2024, month: time.January,
			weekdays: []string{"mon"}, ordinals: []Ordinal{5, -5},
			want: []int{1, 29},
		},
		"second row tuesday": {
			// September 2024 starts on a Sunday.
			year: 2024, month: time.September,
			weekdays: []string{"tue"}, ordinals: []Ordinal{2},
			want: []int{3},
		},
		"several weekdays and ordinals": {
			year: 2023, month: time.May,
			weekdays: []string{"sat", "sun"}, ordinals: []Ordinal{1, -1},
			want: []int{6, 7, 27, 28},
		},
		"four full rows": {
			year: 2021, month: time.February,
			weekdays: []string{"sun", "mon"}, ordinals: []Ordinal{-1, -4},
			want: []int{1, 7, 22, 28},
		},
		"duplicated labels are harmless": {
			year: 2023, month: time.May,
			weekdays: []string{"sat", "sat"}, ordinals: []Ordinal{-1},
			want: []int{27},
		},
		"malformed label never matches": {
			year: 2023, month: time.May,
			weekdays: []string{"saturnday", ""}, ordinals: []Ordinal{-1, 1},
			want: nil,
		},
		"zero ordinal never matches": {
			year: 2023, month: time.May,
			weekdays: []string{"sat"}, ordinals: []Ordinal{0, 6, -6},
			want: nil,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := matchingDays(t, tt.year, tt.month, tt.weekdays, tt.ordinals)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchesSingleDates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		day      time.Time
		weekdays []string
		ordinal  Ordinal
		want     bool
	}{
		{date(2023, time.October, 2), []string{"mon"}, 1, false},
		{date(2023, time.October, 2), []string{"mon"}, 2, true},
		{date(2023, time.November, 24), []string{"fri"}, -2, true},
		{date(2023, time.November, 17), []string{"fri"}, -2, false},
		{date(2023, time.November, 27), []string{"mon"}, 5, true},
	}
	for _, tt := range tests {
		got := Matches(tt.weekdays, []Ordinal{tt.ordinal}, tt.day)
		assert.Equal(t, tt.want, got, "%s %v %d", tt.day.Format(time.DateOnly), tt.weekdays, tt.ordinal)
	}
}

// rowOf returns the index of the calendar row holding day.
func rowOf(cal []Week, day int) int {
	for i, w := range cal {
		for _, d := range w {
			if d == day {
				return i
			}
		}
	}
	return -1
}

func TestOrdinalsSelectCalendarRows(t *testing.T) {
	t.Parallel()
	for y := 2000; y <= 2030; y++ {
		for m := time.January; m <= time.December; m++ {
			cal := MonthCalendar(y, m)
			for wd := Monday; wd <= Sunday; wd++ {
				labels := []string{wd.String()}
				for k := 1; k <= MaxOrdinal; k++ {
					fwd := matchingDays(t, y, m, labels, []Ordinal{Ordinal(k)})
					require.LessOrEqual(t, len(fwd), 1)
					if k > len(cal) || cal[k-1][wd] == 0 {
						assert.Empty(t, fwd, "%d-%02d %s %d", y, m, wd, k)
					} else {
						require.Len(t, fwd, 1)
						assert.Equal(t, k-1, rowOf(cal, fwd[0]), "%d-%02d %s %d", y, m, wd, k)
					}

					back := matchingDays(t, y, m, labels, []Ordinal{Ordinal(-k)})
					require.LessOrEqual(t, len(back), 1)
					if len(back) == 1 {
						row := rowOf(cal, back[0])
						assert.Contains(t, []int{len(cal) - k, len(cal) - k - 1}, row, "%d-%02d %s %d", y, m, wd, -k)
					}
				}

				// -1 always finds the last occurrence of wd.
				last := 0
				for _, w := range cal {
					if w[wd] != 0 {
						last = w[wd]
					}
				}
				assert.Equal(t, []int{last}, matchingDays(t, y, m, labels, []Ordinal{-1}), "%d-%02d %s", y, m, wd)
			}
		}
	}
}

func TestFallbackOnlyForEmptyTrailingRow(t *testing.T) {
	t.Parallel()
	for y := 2020; y <= 2026; y++ {
		for m := time.January; m <= time.December; m++ {
			cal := MonthCalendar(y, m)
			last := cal[len(cal)-1]
			for wd := Monday; wd <= Sunday; wd++ {
				if last[wd] == 0 {
					continue
				}
				// A trailing row that carries wd must be the last occurrence.
				assert.True(t, Matches([]string{wd.String()}, []Ordinal{-1}, date(y, m, last[wd])))
				if prev := cal[len(cal)-2][wd]; prev != 0 {
					assert.False(t, Matches([]string{wd.String()}, []Ordinal{-1}, date(y, m, prev)))
				}
			}
		}
	}
}

func TestMatchesIsIdempotent(t *testing.T) {
	t.Parallel()
	d := date(2023, time.May, 27)
	weekdays := []string{"sat"}
	ordinals := []Ordinal{-1}
	first := Matches(weekdays, ordinals, d)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Matches(weekdays, ordinals, d))
	}
	assert.Equal(t, []string{"sat"}, weekdays)
	assert.Equal(t, []Ordinal{-1}, ordinals)
}

func TestMatchesStrings(t *testing.T) {
	t.Parallel()
	assert.True(t, MatchesStrings([]string{"sat"}, []string{"-1"}, date(2023, time.May, 27)))
	assert.True(t, MatchesStrings([]string{"Saturday"}, []string{" -1 ", "x"}, date(2023, time.May, 27)))
	assert.False(t, MatchesStrings([]string{"sat"}, []string{"last"}, date(2023, time.May, 27)))
}

func TestNext(t *testing.T) {
	t.Parallel()
	got, ok := Next([]string{"sat"}, []Ordinal{-1}, date(2023, time.May, 28), 2)
	require.True(t, ok)
	assert.Equal(t, "2023-06-24", got.Format(time.DateOnly))

	got, ok = Next([]string{"sat"}, []Ordinal{-1}, date(2023, time.May, 27), 1)
	require.True(t, ok)
	assert.Equal(t, "2023-05-27", got.Format(time.DateOnly))

	_, ok = Next([]string{"nope"}, []Ordinal{1}, date(2023, time.May, 1), 3)
	assert.False(t, ok)
}
