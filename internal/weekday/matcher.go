package weekday

import "time"

// Matches reports whether date sits in the calendar row selected by any of
// the ordinals for any of the given weekdays. Labels that do not parse
// never match.
func Matches(weekdays []string, ordinals []Ordinal, date time.Time) bool {
	cur := Of(date)
	var cal []Week
	for _, label := range weekdays {
		wd, ok := ParseWeekday(label)
		if !ok || wd != cur {
			continue
		}
		if cal == nil {
			cal = MonthCalendar(date.Year(), date.Month())
		}
		for _, n := range ordinals {
			if matchRow(cal, cur, date.Day(), n) {
				return true
			}
		}
	}
	return false
}

// MatchesStrings is Matches for textual ordinals; ordinals that do not parse
// never match.
func MatchesStrings(weekdays, ordinals []string, date time.Time) bool {
	ns := make([]Ordinal, 0, len(ordinals))
	for _, s := range ordinals {
		if n, err := ParseOrdinal(s); err == nil {
			ns = append(ns, n)
		}
	}
	return Matches(weekdays, ns, date)
}

// matchRow compares the wd slot of calendar row n with day. Positive n is
// the n-th row from the top. Negative n counts rows from the bottom, and
// when that row has no wd slot the row above it is used instead. Rows
// outside the grid never match.
func matchRow(cal []Week, wd Weekday, day int, n Ordinal) bool {
	if day <= 0 || !n.Valid() {
		return false
	}
	if n > 0 {
		return slot(cal, int(n)-1, wd) == day
	}
	i := len(cal) + int(n)
	if slot(cal, i, wd) == 0 {
		i--
	}
	return slot(cal, i, wd) == day
}

// slot returns the day in row i for wd, or 0 when i is outside the grid.
func slot(cal []Week, i int, wd Weekday) int {
	if i < 0 || i >= len(cal) {
		return 0
	}
	return cal[i][wd]
}

// Next returns the first date on or after from (same location, midnight)
// that matches, searching at most limitMonths months ahead. ok is false when
// no date matched.
func Next(weekdays []string, ordinals []Ordinal, from time.Time, limitMonths int) (time.Time, bool) {
	d := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	end := d.AddDate(0, limitMonths, 0)
	for ; d.Before(end); d = d.AddDate(0, 0, 1) {
		if Matches(weekdays, ordinals, d) {
			return d, true
		}
	}
	return time.Time{}, false
}
